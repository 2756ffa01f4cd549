// Package telemetry defines the gateway's security-relevant events and the
// emitter they flow through (e.g. to OTel Logs).
package telemetry

import (
	"context"
	"time"
)

// Event types emitted by the gateway.
const (
	EventSignIn          = "signin"
	EventSignOut         = "signout"
	EventSyncFailed      = "sync_failed"
	EventSessionRotated  = "session_rotated"
	EventPathRejected    = "path_rejected"
	EventUpstreamFailure = "upstream_failure"
)

// Event is a single gateway event. Subject may be empty for anonymous
// requests; Detail carries the event-specific context (path, provider, error).
type Event struct {
	Type      string
	Subject   string
	Provider  string
	Path      string
	Detail    string
	CreatedAt time.Time
}

// Emitter emits gateway events. Best-effort; callers log and ignore errors.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Noop returns an Emitter that discards everything.
func Noop() Emitter { return noopEmitter{} }

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, Event) error { return nil }
