package security

import (
	"context"
)

type contextKey string

const callerKey contextKey = "caller"

// WithCaller attaches a caller identity to the request context so access-log
// records can attribute reads when the transport knows who is asking.
func WithCaller(ctx context.Context, caller string) context.Context {
	if caller == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller identity, or "" when unknown.
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey).(string)
	return caller
}
