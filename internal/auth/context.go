package auth

import (
	"context"

	"github.com/frahmantamala/dental-credit/internal/core/user"
)

type ctxKey string

const ContextUserKey ctxKey = "user"

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok && u != nil
}

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ContextUserKey, u)
}

// ActorFromContext returns the authenticated caller as a domain actor.
func ActorFromContext(ctx context.Context) (user.Actor, bool) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return user.Actor{}, false
	}
	return u.Actor(), true
}
