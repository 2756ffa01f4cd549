package gateway

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"deadinternet.report/gateway/internal/security"
	"deadinternet.report/gateway/internal/session"
	"deadinternet.report/gateway/internal/telemetry"
)

// backendAPIPrefix is where the backend mounts its versioned API.
const backendAPIPrefix = "/api/v1/"

// Handler proxies browser calls to the scanner backend. Per request it
// checks the allow-list, translates the session credential into a fresh
// service token, forwards the call, and relays the response verbatim.
// Stateless: nothing is persisted between requests.
type Handler struct {
	backendBase string
	allowList   AllowList
	sessions    *session.Codec
	tokens      *security.TokenProvider
	client      *http.Client
	emitter     telemetry.Emitter
}

// NewHandler returns a proxy Handler. emitter may be nil.
func NewHandler(backendBaseURL string, allowList AllowList, sessions *session.Codec, tokens *security.TokenProvider, emitter telemetry.Emitter) *Handler {
	if emitter == nil {
		emitter = telemetry.Noop()
	}
	return &Handler{
		backendBase: strings.TrimSuffix(backendBaseURL, "/"),
		allowList:   allowList,
		sessions:    sessions,
		tokens:      tokens,
		client:      &http.Client{Timeout: 60 * time.Second},
		emitter:     emitter,
	}
}

// ServeHTTP handles a proxied call. The route pattern must expose the
// backend path under the "path" wildcard (e.g. "/api/backend/{path...}").
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")

	// Guard order is fixed: allow-list first, before any signing or network
	// work, so a rejected path costs nothing and leaks nothing.
	if !h.allowList.Allows(path) {
		h.emit(r, telemetry.Event{Type: telemetry.EventPathRejected, Path: path})
		writeJSONError(w, http.StatusForbidden, "Forbidden path")
		return
	}

	target := h.backendBase + backendAPIPrefix + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "Backend unavailable")
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		out.Header.Set("Content-Type", ct)
	} else {
		out.Header.Set("Content-Type", "application/json")
	}

	// A missing or invalid session is not an error here: the call goes
	// through anonymously and the backend decides whether the route needs
	// auth. A present session becomes a one-shot service token; the
	// claim set comes from the decrypted credential only, never from the
	// inbound request.
	if raw, ok := session.ReadCookie(r); ok {
		if claims, err := h.sessions.Decode(raw); err == nil {
			token, _, err := h.tokens.Issue(claims.Subject, claims.Email, claims.Name, claims.Tier)
			if err != nil {
				log.Printf("proxy: signing service token for %s: %v", claims.Subject, err)
				writeJSONError(w, http.StatusInternalServerError, "Internal error")
				return
			}
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := h.client.Do(out)
	if err != nil {
		log.Printf("proxy: %s %s: %v", r.Method, path, err)
		h.emit(r, telemetry.Event{Type: telemetry.EventUpstreamFailure, Path: path, Detail: err.Error()})
		writeJSONError(w, http.StatusBadGateway, "Backend unavailable")
		return
	}
	defer resp.Body.Close()

	// Relay status and body verbatim.
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("proxy: relaying %s %s: %v", r.Method, path, err)
	}
}

func (h *Handler) emit(r *http.Request, event telemetry.Event) {
	event.CreatedAt = time.Now().UTC()
	if err := h.emitter.Emit(r.Context(), event); err != nil {
		log.Printf("telemetry: emit %s: %v", event.Type, err)
	}
}

// writeJSONError writes the backend-compatible error shape {"detail": ...}.
func writeJSONError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
