package middleware

import (
	"context"

	"github.com/angelmondragon/fulfillment-backend/internal/access"
)

type contextKey string

const ctxCaller contextKey = "caller"

// CallerFromContext returns the caller resolved by Auth.
func CallerFromContext(ctx context.Context) (access.Caller, bool) {
	if ctx == nil {
		return access.Caller{}, false
	}
	caller, ok := ctx.Value(ctxCaller).(access.Caller)
	return caller, ok
}

// UserIDFromContext returns the caller's user id or an empty string.
func UserIDFromContext(ctx context.Context) string {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return ""
	}
	return caller.UserID.String()
}

// WithCaller injects the caller into the context for downstream handlers.
func WithCaller(ctx context.Context, caller access.Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCaller, caller)
}
