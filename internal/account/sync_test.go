package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"deadinternet.report/gateway/internal/tier"
)

func TestSync_Success(t *testing.T) {
	var calls int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/users/sync" {
			t.Errorf("path = %s, want /api/v1/users/sync", r.URL.Path)
		}
		if got := r.Header.Get("X-Internal-Secret"); got != "internal-secret" {
			t.Errorf("X-Internal-Secret = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("sync call must not carry Authorization, got %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["id"] != "google:123" || body["email"] != "a@example.com" || body["name"] != "Ada" || body["image"] != "pic" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"tier": "hunter"})
	}))
	defer backend.Close()

	s := NewSyncer(backend.URL, "internal-secret", nil)
	got, err := s.Sync(context.Background(), Identity{
		Subject: "google:123", Email: "a@example.com", Name: "Ada", AvatarURL: "pic",
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got != tier.Hunter {
		t.Errorf("tier = %v, want hunter", got)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("backend calls = %d, want 1", calls)
	}
}

func TestSync_BackendDown_DefaultsToGhost(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close() // refuse connections

	s := NewSyncer(backend.URL, "internal-secret", nil)
	got, err := s.Sync(context.Background(), Identity{Subject: "u1", Email: "a@example.com"})
	if err == nil {
		t.Fatal("Sync succeeded against a closed backend")
	}
	if got != tier.Ghost {
		t.Errorf("tier = %v, want ghost on failure", got)
	}
}

func TestSync_Non2xx_DefaultsToGhost(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer backend.Close()

	s := NewSyncer(backend.URL, "internal-secret", nil)
	got, err := s.Sync(context.Background(), Identity{Subject: "u1"})
	if err == nil {
		t.Fatal("Sync succeeded on 500")
	}
	if got != tier.Ghost {
		t.Errorf("tier = %v, want ghost", got)
	}
}

func TestSync_NonJSON_DefaultsToGhost(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>proxy error</html>"))
	}))
	defer backend.Close()

	s := NewSyncer(backend.URL, "internal-secret", nil)
	got, err := s.Sync(context.Background(), Identity{Subject: "u1"})
	if err == nil {
		t.Fatal("Sync succeeded on non-JSON body")
	}
	if got != tier.Ghost {
		t.Errorf("tier = %v, want ghost", got)
	}
}

func TestSync_UnknownTier_ParsesToGhost(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"tier": "platinum"})
	}))
	defer backend.Close()

	s := NewSyncer(backend.URL, "internal-secret", nil)
	got, err := s.Sync(context.Background(), Identity{Subject: "u1"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got != tier.Ghost {
		t.Errorf("tier = %v, want ghost for unknown tier string", got)
	}
}

func TestRefreshTier_NoCacheKeepsCurrent(t *testing.T) {
	s := NewSyncer("http://backend", "secret", nil)
	if got := s.RefreshTier(context.Background(), "u1", tier.Operator); got != tier.Operator {
		t.Errorf("RefreshTier = %v, want operator", got)
	}
	if got := s.RefreshTier(context.Background(), "u1", tier.Tier("bogus")); got != tier.Ghost {
		t.Errorf("RefreshTier invalid current = %v, want ghost", got)
	}
}
