package account

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"deadinternet.report/gateway/internal/tier"
)

// keyPrefix namespaces cache entries in a shared Redis.
const keyPrefix = "tiercache:"

// TierCache is an explicit short-TTL cache of the tier last returned by
// /users/sync, keyed by subject id. It exists so session rotation can pick up
// tier changes without a backend call. Invalidate is the only way an entry
// disappears early. A nil *TierCache is a working no-op (caching disabled).
type TierCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTierCache connects to Redis at addr. Returns nil when addr is empty.
func NewTierCache(addr string, ttl time.Duration) *TierCache {
	if addr == "" {
		return nil
	}
	return &TierCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

// Get returns the cached tier for subject, if present and parseable.
func (c *TierCache) Get(ctx context.Context, subject string) (tier.Tier, bool) {
	if c == nil || subject == "" {
		return tier.Ghost, false
	}
	val, err := c.rdb.Get(ctx, keyPrefix+subject).Result()
	if err == redis.Nil {
		return tier.Ghost, false
	}
	if err != nil {
		log.Printf("tier cache: get %q: %v", subject, err)
		return tier.Ghost, false
	}
	t := tier.Tier(val)
	if !t.Valid() {
		return tier.Ghost, false
	}
	return t, true
}

// Put stores the tier for subject with the cache TTL. Best-effort; errors are
// logged and ignored.
func (c *TierCache) Put(ctx context.Context, subject string, t tier.Tier) {
	if c == nil || subject == "" {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+subject, t.String(), c.ttl).Err(); err != nil {
		log.Printf("tier cache: put %q: %v", subject, err)
	}
}

// Invalidate removes the cached tier for subject. This is the cache's
// invalidation contract: callers drop the entry when they learn the backend
// tier changed (e.g. a billing webhook relays an upgrade).
func (c *TierCache) Invalidate(ctx context.Context, subject string) {
	if c == nil || subject == "" {
		return
	}
	if err := c.rdb.Del(ctx, keyPrefix+subject).Err(); err != nil {
		log.Printf("tier cache: invalidate %q: %v", subject, err)
	}
}

// Close releases the Redis connection.
func (c *TierCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
