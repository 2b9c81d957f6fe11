package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With stores a logger extended with fields in ctx. Later calls keep adding to it.
func With(ctx context.Context, fields ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, From(ctx).With(fields...))
}

// Into stores l as the logger for ctx.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithActor tags the context logger with the authenticated caller.
func WithActor(ctx context.Context, userID int64, role string) context.Context {
	return With(ctx, "user_id", userID, "role", role)
}

// From returns the logger carried by ctx, or the process logger.
func From(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return LoggerWrapper()
}
