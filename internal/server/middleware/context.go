package middleware

import (
	"context"

	"deadinternet.report/gateway/internal/session"
)

type contextKey struct{ name string }

var sessionKey = contextKey{"session"}

// WithSession returns a context carrying the decoded session claims.
// Handlers read them via SessionFrom.
func WithSession(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, sessionKey, claims)
}

// SessionFrom returns the session claims from context and true if set;
// otherwise nil, false. Absence means the request is anonymous.
func SessionFrom(ctx context.Context) (*session.Claims, bool) {
	v, ok := ctx.Value(sessionKey).(*session.Claims)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
