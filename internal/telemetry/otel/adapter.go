package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"deadinternet.report/gateway/internal/telemetry"
)

// NewEventEmitter returns an Emitter that sends gateway events as OTel log
// records via the given LoggerProvider. If provider is nil, returns a no-op
// emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.Emitter {
	if provider == nil {
		return telemetry.Noop()
	}
	return &otelEmitter{logger: provider.Logger("gateway.telemetry")}
}

// recordEmitter is the subset of otellog.Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitterWithLogger returns an Emitter backed by the given logger.
// Intended for tests.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.Emitter {
	return &otelEmitter{logger: logger}
}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the gateway event to an OTel log record and emits it.
// Best-effort; errors are logged by callers.
func (e *otelEmitter) Emit(ctx context.Context, event telemetry.Event) error {
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if event.Detail != "" {
		rec.SetBody(otellog.StringValue(event.Detail))
	}
	if event.Type != "" {
		rec.AddAttributes(otellog.String("event_type", event.Type))
	}
	if event.Subject != "" {
		rec.AddAttributes(otellog.String("subject", event.Subject))
	}
	if event.Provider != "" {
		rec.AddAttributes(otellog.String("provider", event.Provider))
	}
	if event.Path != "" {
		rec.AddAttributes(otellog.String("path", event.Path))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
