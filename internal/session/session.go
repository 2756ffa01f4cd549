// Package session owns the browser-held session credential: a closed claims
// record sealed into an encrypted cookie. No other package constructs or
// parses the credential.
package session

import (
	"errors"
	"time"

	"deadinternet.report/gateway/internal/tier"
)

var (
	// ErrInvalidSession is returned when a credential is malformed, tampered
	// with, or encrypted under a different secret. Callers treat it exactly
	// like an absent session.
	ErrInvalidSession = errors.New("invalid session credential")
	// ErrExpiredSession is returned when a credential's expiry has passed.
	// Callers treat it exactly like an absent session.
	ErrExpiredSession = errors.New("expired session credential")
)

// Claims is the session credential payload. It is a closed record: unknown
// fields in a decrypted credential are dropped, never relayed.
type Claims struct {
	// ID is a per-session identifier (jti); rotation issues a new one.
	ID string `json:"jti"`
	// Subject is the provider-namespaced account id (e.g. "github:8412").
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	// AvatarURL mirrors the provider's profile picture.
	AvatarURL string `json:"picture,omitempty"`
	// Tier is the account tier observed at the last sign-in or refresh.
	Tier      tier.Tier `json:"tier"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
}

// Expired reports whether the credential's expiry has passed at now.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt <= now.Unix()
}

// NearExpiry reports whether the credential is in the final quarter of its
// validity window; the middleware rotates it at that point.
func (c *Claims) NearExpiry(now time.Time) bool {
	issued := time.Unix(c.IssuedAt, 0)
	expires := time.Unix(c.ExpiresAt, 0)
	if !expires.After(issued) {
		return true
	}
	remaining := expires.Sub(now)
	return remaining <= expires.Sub(issued)/4
}

// validate rejects credentials missing the fields every session must carry.
func (c *Claims) validate() error {
	if c.Subject == "" || c.ExpiresAt == 0 {
		return ErrInvalidSession
	}
	if !c.Tier.Valid() {
		c.Tier = tier.Ghost
	}
	return nil
}
