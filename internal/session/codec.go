package session

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"deadinternet.report/gateway/internal/tier"
)

// hkdfInfo binds the derived key to this purpose; changing it invalidates
// every outstanding session.
const hkdfInfo = "deadinternet.report gateway session encryption key"

// Codec seals Claims into a compact JWE (dir + A256GCM) and opens them again.
// The content-encryption key is derived from the session secret with
// HKDF-SHA256, so the raw secret never keys the cipher directly.
type Codec struct {
	key []byte
	ttl time.Duration
}

// NewCodec derives the encryption key from secret. ttl is the lifetime given
// to newly issued credentials.
func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("session: TTL must be positive")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	return &Codec{key: key, ttl: ttl}, nil
}

// Issue builds fresh Claims for the given identity and tier, stamped with a
// new jti and the codec's TTL.
func (c *Codec) Issue(subject, email, name, avatarURL string, t tier.Tier) *Claims {
	if !t.Valid() {
		t = tier.Ghost
	}
	now := time.Now().UTC()
	return &Claims{
		ID:        uuid.New().String(),
		Subject:   subject,
		Email:     email,
		Name:      name,
		AvatarURL: avatarURL,
		Tier:      t,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(c.ttl).Unix(),
	}
}

// Reissue copies claims with a new jti and a fresh validity window, keeping
// identity fields and tier. Used at the session-refresh boundary.
func (c *Codec) Reissue(old *Claims, t tier.Tier) *Claims {
	return c.Issue(old.Subject, old.Email, old.Name, old.AvatarURL, t)
}

// Encode seals claims into a compact JWE string for the cookie.
func (c *Codec) Encode(claims *Claims) (string, error) {
	if claims == nil {
		return "", ErrInvalidSession
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: c.key},
		nil,
	)
	if err != nil {
		return "", err
	}
	obj, err := enc.Encrypt(payload)
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

// Decode opens a credential and validates it. Tampered, foreign-keyed, or
// structurally invalid input returns ErrInvalidSession; a past expiry returns
// ErrExpiredSession. Both mean "no session" to callers.
func (c *Codec) Decode(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidSession
	}
	obj, err := jose.ParseEncrypted(raw,
		[]jose.KeyAlgorithm{jose.DIRECT},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return nil, ErrInvalidSession
	}
	payload, err := obj.Decrypt(c.key)
	if err != nil {
		return nil, ErrInvalidSession
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidSession
	}
	if err := claims.validate(); err != nil {
		return nil, err
	}
	if claims.Expired(time.Now()) {
		return nil, ErrExpiredSession
	}
	return &claims, nil
}
