package middleware

import (
	"context"

	"github.com/aquarent/aquarent-backend/internal/permissions"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// PrincipalFromContext returns the authenticated actor, if any.
func PrincipalFromContext(ctx context.Context) (permissions.Principal, bool) {
	if ctx == nil {
		return permissions.Principal{}, false
	}
	if p, ok := ctx.Value(ctxPrincipal).(permissions.Principal); ok {
		return p, true
	}
	return permissions.Principal{}, false
}

// WithPrincipal injects the actor into the context for downstream handlers.
func WithPrincipal(ctx context.Context, p permissions.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}
