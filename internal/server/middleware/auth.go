// Package middleware gates UI routes by authentication status at the edge,
// before any page handler runs.
package middleware

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deadinternet.report/gateway/internal/session"
	"deadinternet.report/gateway/internal/telemetry"
	"deadinternet.report/gateway/internal/tier"
)

// RefreshTierFunc returns the tier to embed when a session is rotated.
// current is the tier already in the session.
type RefreshTierFunc func(ctx context.Context, subject string, current tier.Tier) tier.Tier

// Config wires the auth middleware. Zero-value route fields get the
// dashboard defaults.
type Config struct {
	Sessions *session.Codec
	// RefreshTier is consulted when rotating a near-expiry session; nil keeps
	// the session's tier unchanged.
	RefreshTier RefreshTierFunc
	// ProtectedPrefixes are route prefixes that require a session.
	ProtectedPrefixes []string
	// AuthPages are routes a signed-in user is bounced away from.
	AuthPages []string
	// SignInPath receives unauthenticated users (with callbackUrl set).
	SignInPath string
	// LandingPath receives already-signed-in users who hit an auth page.
	LandingPath string
	Emitter     telemetry.Emitter
}

// Auth returns middleware enforcing the route-protection rules:
// protected route without a valid session redirects to the sign-in page with
// the original path as callbackUrl; the sign-in page with a valid session
// redirects to the landing page; everything else passes through. An expired
// or malformed credential is treated exactly like an absent one.
func Auth(cfg Config) func(http.Handler) http.Handler {
	if cfg.SignInPath == "" {
		cfg.SignInPath = "/login"
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = "/dashboard"
	}
	if len(cfg.ProtectedPrefixes) == 0 {
		cfg.ProtectedPrefixes = []string{"/dashboard"}
	}
	if len(cfg.AuthPages) == 0 {
		cfg.AuthPages = []string{cfg.SignInPath}
	}
	if cfg.Emitter == nil {
		cfg.Emitter = telemetry.Noop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := resolveSession(cfg.Sessions, r)

			if matchesPrefix(r.URL.Path, cfg.ProtectedPrefixes) && claims == nil {
				target := cfg.SignInPath + "?callbackUrl=" + url.QueryEscape(r.URL.Path)
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			if matchesPrefix(r.URL.Path, cfg.AuthPages) && claims != nil {
				http.Redirect(w, r, cfg.LandingPath, http.StatusFound)
				return
			}

			if claims != nil {
				if claims.NearExpiry(time.Now()) {
					claims = rotate(cfg, w, r, claims)
				}
				r = r.WithContext(WithSession(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveSession decodes the session cookie, failing closed: any decode error
// means no session.
func resolveSession(codec *session.Codec, r *http.Request) *session.Claims {
	raw, ok := session.ReadCookie(r)
	if !ok {
		return nil
	}
	claims, err := codec.Decode(raw)
	if err != nil {
		return nil
	}
	return claims
}

// rotate re-issues a near-expiry session with a fresh window. The tier is
// re-read through RefreshTier; this is the boundary where tier changes
// propagate. On encode failure the old cookie stays in place.
func rotate(cfg Config, w http.ResponseWriter, r *http.Request, old *session.Claims) *session.Claims {
	t := old.Tier
	if cfg.RefreshTier != nil {
		t = cfg.RefreshTier(r.Context(), old.Subject, old.Tier)
	}
	fresh := cfg.Sessions.Reissue(old, t)
	raw, err := cfg.Sessions.Encode(fresh)
	if err != nil {
		log.Printf("middleware: rotating session for %s: %v", old.Subject, err)
		return old
	}
	session.WriteCookie(w, r, raw, time.Unix(fresh.ExpiresAt, 0))
	if err := cfg.Emitter.Emit(r.Context(), telemetry.Event{
		Type:      telemetry.EventSessionRotated,
		Subject:   fresh.Subject,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("telemetry: emit %s: %v", telemetry.EventSessionRotated, err)
	}
	return fresh
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
