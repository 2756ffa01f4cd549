// Package server assembles the HTTP surface: auth routes, the backend
// proxy, and the session-gated pages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"time"

	"deadinternet.report/gateway/internal/gateway"
	"deadinternet.report/gateway/internal/identity"
	"deadinternet.report/gateway/internal/server/middleware"
	"deadinternet.report/gateway/internal/session"
	"deadinternet.report/gateway/internal/telemetry"
)

// Deps holds the handlers and services the HTTP server routes to.
type Deps struct {
	// Sessions decodes and rotates the session credential cookie.
	Sessions *session.Codec
	// Identity serves the OAuth sign-in and sign-out routes. If nil, auth
	// routes are not registered.
	Identity *identity.Handler
	// Proxy is the authenticated backend proxy mounted at /api/backend/.
	Proxy *gateway.Handler
	// RefreshTier re-reads a user's tier when a session is rotated. Optional.
	RefreshTier middleware.RefreshTierFunc
	// Emitter receives lifecycle events. Optional.
	Emitter telemetry.Emitter
}

// New builds the HTTP server for addr with all routes registered.
func New(addr string, deps Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Routes(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Routes builds the full route table. Pages behind /dashboard require a
// session; /login bounces signed-in users back to the dashboard.
func Routes(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /{$}", handleHome)
	mux.HandleFunc("GET /login", handleLogin)
	mux.HandleFunc("GET /dashboard", handleDashboard)
	mux.HandleFunc("GET /dashboard/", handleDashboard)

	if deps.Identity != nil {
		deps.Identity.Register(mux)
	}
	if deps.Proxy != nil {
		mux.Handle("/api/backend/{path...}", deps.Proxy)
	}

	auth := middleware.Auth(middleware.Config{
		Sessions:    deps.Sessions,
		RefreshTier: deps.RefreshTier,
		Emitter:     deps.Emitter,
	})
	return auth(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html><title>deadinternet.report</title><h1>deadinternet.report</h1><p><a href="/login">Sign in</a></p>`)
}

func handleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html><title>Sign in</title><h1>Sign in</h1>`)
	fmt.Fprint(w, `<p><a href="/auth/google/start`+callbackQuery(r)+`">Continue with Google</a></p>`)
	fmt.Fprint(w, `<p><a href="/auth/github/start`+callbackQuery(r)+`">Continue with GitHub</a></p>`)
}

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.SessionFrom(r.Context())
	if !ok {
		// The auth middleware redirects anonymous requests before this
		// handler runs; reaching here without claims is a wiring bug.
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html><title>Dashboard</title><h1>Dashboard</h1><p>Signed in as %s (%s)</p>`,
		html.EscapeString(claims.Name), claims.Tier)
}

func callbackQuery(r *http.Request) string {
	if cb := r.URL.Query().Get("callbackUrl"); cb != "" {
		return "?callbackUrl=" + url.QueryEscape(cb)
	}
	return ""
}
