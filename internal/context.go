package internal

import "context"

type ctxKey int

const userIDKey ctxKey = iota

// ContextWithUserID records the authenticated caller for code that cannot import the auth package.
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the caller id, or 0 for anonymous and background work.
func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}
