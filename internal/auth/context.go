package auth

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/pewcal/pewcal/internal/store"
)

type contextKey string

const (
	contextKeyUser        contextKey = "user"
	contextKeyTokenSource contextKey = "token_source"
)

func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(contextKeyUser).(*store.User)
	return u, ok
}

func WithTokenSource(ctx context.Context, ts oauth2.TokenSource) context.Context {
	return context.WithValue(ctx, contextKeyTokenSource, ts)
}

// TokenSourceFromContext returns the Google token source set by RequireGoogle.
func TokenSourceFromContext(ctx context.Context) (oauth2.TokenSource, bool) {
	ts, ok := ctx.Value(contextKeyTokenSource).(oauth2.TokenSource)
	return ts, ok
}
