package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deadinternet.report/gateway/internal/account"
	"deadinternet.report/gateway/internal/session"
	"deadinternet.report/gateway/internal/telemetry"
	"deadinternet.report/gateway/internal/tier"
)

const (
	stateCookieName    = "di_oauth_state"
	callbackCookieName = "di_oauth_callback"
	stateTTL           = 10 * time.Minute
	defaultLanding     = "/dashboard"
	signInPath         = "/login"
)

// Syncer mirrors a signed-in identity into the backend and resolves its tier.
type Syncer interface {
	Sync(ctx context.Context, id account.Identity) (tier.Tier, error)
}

// Handler serves the OAuth sign-in and sign-out routes.
type Handler struct {
	providers ProviderSet
	sessions  *session.Codec
	sync      Syncer
	emitter   telemetry.Emitter
}

// NewHandler builds the identity handler. emitter may be nil.
func NewHandler(providers ProviderSet, sessions *session.Codec, sync Syncer, emitter telemetry.Emitter) *Handler {
	if emitter == nil {
		emitter = telemetry.Noop()
	}
	return &Handler{providers: providers, sessions: sessions, sync: sync, emitter: emitter}
}

// Register mounts the identity routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/{provider}/start", h.Start)
	mux.HandleFunc("GET /auth/{provider}/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/logout", h.Logout)
}

// Start begins the OAuth flow: generate a state nonce, remember the caller's
// callbackUrl, redirect to the provider's consent page.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers.Lookup(r.PathValue("provider"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	state, err := newState()
	if err != nil {
		log.Printf("identity: generating state: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	setFlowCookie(w, r, stateCookieName, state)
	if cb := sanitizeCallback(r.URL.Query().Get("callbackUrl")); cb != "" {
		setFlowCookie(w, r, callbackCookieName, cb)
	}

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the OAuth flow. A failed backend sync is not fatal:
// the user still signs in, at the ghost tier.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers.Lookup(r.PathValue("provider"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookieName)
	clearFlowCookie(w, r, stateCookieName)
	if err != nil || state == "" || cookie.Value != state {
		h.failSignIn(w, r, "state_mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.failSignIn(w, r, "access_denied")
		return
	}

	id, err := provider.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("identity: %s exchange: %v", provider.Name(), err)
		h.failSignIn(w, r, "exchange_failed")
		return
	}

	userTier, err := h.sync.Sync(r.Context(), id)
	if err != nil {
		log.Printf("identity: syncing %s: %v", id.Subject, err)
		h.emit(r.Context(), telemetry.Event{
			Type:     telemetry.EventSyncFailed,
			Subject:  id.Subject,
			Provider: provider.Name(),
			Detail:   err.Error(),
		})
	}

	claims := h.sessions.Issue(id.Subject, id.Email, id.Name, id.AvatarURL, userTier)
	raw, err := h.sessions.Encode(claims)
	if err != nil {
		log.Printf("identity: encoding session for %s: %v", id.Subject, err)
		h.failSignIn(w, r, "session_error")
		return
	}
	session.WriteCookie(w, r, raw, time.Unix(claims.ExpiresAt, 0))

	h.emit(r.Context(), telemetry.Event{
		Type:     telemetry.EventSignIn,
		Subject:  id.Subject,
		Provider: provider.Name(),
	})

	target := defaultLanding
	if cb, err := r.Cookie(callbackCookieName); err == nil {
		if sanitized := sanitizeCallback(cb.Value); sanitized != "" {
			target = sanitized
		}
	}
	clearFlowCookie(w, r, callbackCookieName)
	http.Redirect(w, r, target, http.StatusFound)
}

// Logout clears the session cookie and returns the user to the public site.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw, ok := session.ReadCookie(r); ok {
		if claims, err := h.sessions.Decode(raw); err == nil {
			h.emit(r.Context(), telemetry.Event{
				Type:    telemetry.EventSignOut,
				Subject: claims.Subject,
			})
		}
	}
	session.ClearCookie(w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) failSignIn(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, signInPath+"?error="+url.QueryEscape(reason), http.StatusFound)
}

func (h *Handler) emit(ctx context.Context, ev telemetry.Event) {
	ev.CreatedAt = time.Now().UTC()
	if err := h.emitter.Emit(ctx, ev); err != nil {
		log.Printf("telemetry: emit %s: %v", ev.Type, err)
	}
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// sanitizeCallback accepts only site-relative paths. Anything absolute or
// protocol-relative is discarded so the flow cannot redirect off-site.
func sanitizeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}
	if u, err := url.Parse(raw); err != nil || u.Host != "" || u.Scheme != "" {
		return ""
	}
	return raw
}

func setFlowCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func clearFlowCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}
