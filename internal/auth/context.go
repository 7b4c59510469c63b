package auth

import "context"

type callerContextKey struct{}

// WithCaller attaches the authenticated caller to the context, for
// downstream components (Router, ToolExecutor) that need a caller ID to
// write into AuditEvents.
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	if caller == nil {
		return ctx
	}
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext retrieves the authenticated caller from the context.
func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(*Caller)
	return caller, ok
}
