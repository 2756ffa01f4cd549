// Package account talks to the scanner backend's account endpoints: the
// create-or-update sync call made once per sign-in, and the optional
// short-TTL tier cache consulted at session refresh.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"deadinternet.report/gateway/internal/tier"
)

// Identity is the claim set received from an OAuth provider, passed to the
// backend at sign-in. A closed record: nothing else from the provider
// response crosses this boundary.
type Identity struct {
	Subject   string
	Email     string
	Name      string
	AvatarURL string
}

// syncRequest is the /users/sync body. Field names match the backend contract.
type syncRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// syncResponse is the /users/sync reply.
type syncResponse struct {
	Tier string `json:"tier"`
}

// Syncer performs the server-to-server account sync. It authenticates with
// the internal secret, which is never attached to any other request.
type Syncer struct {
	baseURL string
	secret  string
	client  *http.Client
	cache   *TierCache
}

// NewSyncer returns a Syncer for the backend at baseURL. cache may be nil
// (caching disabled). The HTTP client carries a hard timeout so a hanging
// backend cannot stall sign-in.
func NewSyncer(baseURL, internalSecret string, cache *TierCache) *Syncer {
	return &Syncer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  internalSecret,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
	}
}

// Sync creates or updates the account record and returns its current tier.
// On any failure the returned tier is Ghost and the error describes the
// failure; callers log it and issue the session anyway. Privilege is never
// granted optimistically, but sign-in is never blocked by a backend outage.
func (s *Syncer) Sync(ctx context.Context, id Identity) (tier.Tier, error) {
	payload, err := json.Marshal(syncRequest{
		ID:    id.Subject,
		Email: id.Email,
		Name:  id.Name,
		Image: id.AvatarURL,
	})
	if err != nil {
		return tier.Ghost, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/users/sync", bytes.NewReader(payload))
	if err != nil {
		return tier.Ghost, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", s.secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return tier.Ghost, fmt.Errorf("account sync: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tier.Ghost, fmt.Errorf("account sync: backend returned %s", resp.Status)
	}
	var body syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return tier.Ghost, fmt.Errorf("account sync: decoding response: %w", err)
	}

	t := tier.Parse(body.Tier)
	s.cache.Put(ctx, id.Subject, t)
	return t, nil
}

// RefreshTier returns the tier to embed when rotating a session. It consults
// the cache when enabled; on a miss (or with caching disabled) it keeps the
// tier already in the session. It never calls the backend: tier changes
// propagate through sign-in and cache write-through only.
func (s *Syncer) RefreshTier(ctx context.Context, subject string, current tier.Tier) tier.Tier {
	if t, ok := s.cache.Get(ctx, subject); ok {
		return t
	}
	if !current.Valid() {
		return tier.Ghost
	}
	return current
}
