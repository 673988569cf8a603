package auth

import "context"

type userIDContextKey struct{}

// ContextWithUserID attaches the authenticated user id to ctx.
func ContextWithUserID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return context.WithValue(ctx, userIDContextKey{}, id)
}

// UserIDFromContext returns the id stored by ContextWithUserID.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(userIDContextKey{}).(int64)
	return id, ok && id > 0
}
