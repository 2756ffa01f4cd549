package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"deadinternet.report/gateway/internal/account"
	"deadinternet.report/gateway/internal/session"
	"deadinternet.report/gateway/internal/telemetry"
	"deadinternet.report/gateway/internal/tier"
)

const testSessionSecret = "identity-test-session-secret-0123456789a"

type fakeSyncer struct {
	tier   tier.Tier
	err    error
	synced []account.Identity
}

func (f *fakeSyncer) Sync(_ context.Context, id account.Identity) (tier.Tier, error) {
	f.synced = append(f.synced, id)
	if f.err != nil {
		return tier.Ghost, f.err
	}
	return f.tier, nil
}

// fakeProviderServer stands in for the OAuth token and userinfo endpoints.
func fakeProviderServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"token-123","token_type":"bearer"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(t *testing.T, id account.Identity, fetchErr error) *Provider {
	t.Helper()
	srv := fakeProviderServer(t)
	return &Provider{
		name: ProviderGitHub,
		config: &oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "https://deadinternet.report/auth/github/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:  srv.URL + "/authorize",
				TokenURL: srv.URL + "/token",
			},
		},
		fetch: func(context.Context, *http.Client) (account.Identity, error) {
			if fetchErr != nil {
				return account.Identity{}, fetchErr
			}
			return id, nil
		},
	}
}

func newTestHandler(t *testing.T, provider *Provider, sync Syncer) (*Handler, *session.Codec) {
	t.Helper()
	codec, err := session.NewCodec([]byte(testSessionSecret), time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	h := NewHandler(ProviderSet{provider.Name(): provider}, codec, sync, telemetry.Noop())
	return h, codec
}

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestStartRedirectsToConsentWithState(t *testing.T) {
	provider := testProvider(t, account.Identity{}, nil)
	h, _ := newTestHandler(t, provider, &fakeSyncer{tier: tier.Hunter})

	req := httptest.NewRequest(http.MethodGet, "/auth/github/start?callbackUrl=/dashboard/scans", nil)
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	state := cookieByName(rec.Result().Cookies(), stateCookieName)
	if state == nil || state.Value == "" {
		t.Fatal("expected a state cookie")
	}
	if !state.HttpOnly {
		t.Error("state cookie must be HttpOnly")
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	if got := loc.Query().Get("state"); got != state.Value {
		t.Errorf("consent state = %q, want cookie value %q", got, state.Value)
	}
	cb := cookieByName(rec.Result().Cookies(), callbackCookieName)
	if cb == nil || cb.Value != "/dashboard/scans" {
		t.Errorf("callback cookie = %v, want /dashboard/scans", cb)
	}
}

func TestStartRejectsUnknownProvider(t *testing.T) {
	provider := testProvider(t, account.Identity{}, nil)
	h, _ := newTestHandler(t, provider, &fakeSyncer{})

	req := httptest.NewRequest(http.MethodGet, "/auth/gitlab/start", nil)
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStartDropsAbsoluteCallback(t *testing.T) {
	provider := testProvider(t, account.Identity{}, nil)
	h, _ := newTestHandler(t, provider, &fakeSyncer{})

	req := httptest.NewRequest(http.MethodGet, "/auth/github/start?callbackUrl=https://evil.test/phish", nil)
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if c := cookieByName(rec.Result().Cookies(), callbackCookieName); c != nil {
		t.Errorf("off-site callbackUrl must not be remembered, got %q", c.Value)
	}
}

func TestCallbackSignsInAndRedirects(t *testing.T) {
	id := account.Identity{Subject: "github:8412", Email: "a@b.test", Name: "Alice", AvatarURL: "https://img.test/a.png"}
	provider := testProvider(t, id, nil)
	sync := &fakeSyncer{tier: tier.Operator}
	h, codec := newTestHandler(t, provider, sync)

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s-1&code=c-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "s-1"})
	req.AddCookie(&http.Cookie{Name: callbackCookieName, Value: "/dashboard/scans"})
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if got, want := rec.Header().Get("Location"), "/dashboard/scans"; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
	if len(sync.synced) != 1 || sync.synced[0].Subject != "github:8412" {
		t.Fatalf("synced identities = %+v, want one for github:8412", sync.synced)
	}
	sessCookie := cookieByName(rec.Result().Cookies(), session.CookieName)
	if sessCookie == nil {
		t.Fatal("expected a session cookie")
	}
	claims, err := codec.Decode(sessCookie.Value)
	if err != nil {
		t.Fatalf("Decode session: %v", err)
	}
	if claims.Subject != "github:8412" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "github:8412")
	}
	if claims.Tier != tier.Operator {
		t.Errorf("Tier = %q, want %q", claims.Tier, tier.Operator)
	}
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	provider := testProvider(t, account.Identity{Subject: "github:1"}, nil)
	h, _ := newTestHandler(t, provider, &fakeSyncer{})

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=forged&code=c-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "genuine"})
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if got := rec.Header().Get("Location"); !strings.Contains(got, "error=state_mismatch") {
		t.Errorf("Location = %q, want a state_mismatch error", got)
	}
	if c := cookieByName(rec.Result().Cookies(), session.CookieName); c != nil {
		t.Error("no session may be issued on state mismatch")
	}
}

func TestCallbackRejectsMissingStateCookie(t *testing.T) {
	provider := testProvider(t, account.Identity{Subject: "github:1"}, nil)
	h, _ := newTestHandler(t, provider, &fakeSyncer{})

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s-1&code=c-1", nil)
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if got := rec.Header().Get("Location"); !strings.Contains(got, "error=state_mismatch") {
		t.Errorf("Location = %q, want a state_mismatch error", got)
	}
}

func TestCallbackSignsInAsGhostWhenSyncFails(t *testing.T) {
	id := account.Identity{Subject: "google:117", Email: "u@example.test", Name: "U"}
	provider := testProvider(t, id, nil)
	sync := &fakeSyncer{err: errors.New("backend unavailable")}
	h, codec := newTestHandler(t, provider, sync)

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s-1&code=c-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "s-1"})
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if got, want := rec.Header().Get("Location"), "/dashboard"; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
	sessCookie := cookieByName(rec.Result().Cookies(), session.CookieName)
	if sessCookie == nil {
		t.Fatal("sync failure must not block sign-in")
	}
	claims, err := codec.Decode(sessCookie.Value)
	if err != nil {
		t.Fatalf("Decode session: %v", err)
	}
	if claims.Tier != tier.Ghost {
		t.Errorf("Tier = %q, want %q", claims.Tier, tier.Ghost)
	}
}

func TestCallbackRedirectsOnExchangeFailure(t *testing.T) {
	provider := testProvider(t, account.Identity{}, errors.New("userinfo unavailable"))
	h, _ := newTestHandler(t, provider, &fakeSyncer{})

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s-1&code=c-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "s-1"})
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if got := rec.Header().Get("Location"); !strings.Contains(got, "error=exchange_failed") {
		t.Errorf("Location = %q, want an exchange_failed error", got)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	provider := testProvider(t, account.Identity{}, nil)
	h, codec := newTestHandler(t, provider, &fakeSyncer{})

	raw, err := codec.Encode(codec.Issue("github:8412", "", "", "", tier.Hunter))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: raw})
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if got, want := rec.Header().Get("Location"), "/"; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
	cleared := cookieByName(rec.Result().Cookies(), session.CookieName)
	if cleared == nil || cleared.MaxAge != -1 {
		t.Errorf("cleared cookie = %v, want MaxAge -1", cleared)
	}
}

func TestSanitizeCallback(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"/dashboard", "/dashboard"},
		{"/dashboard/scans?tab=recent", "/dashboard/scans?tab=recent"},
		{"", ""},
		{"dashboard", ""},
		{"//evil.test/phish", ""},
		{"https://evil.test/phish", ""},
	}
	for _, tt := range tests {
		if got := sanitizeCallback(tt.raw); got != tt.want {
			t.Errorf("sanitizeCallback(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
