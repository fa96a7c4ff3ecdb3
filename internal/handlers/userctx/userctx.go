package userctx

import (
	"context"

	"github.com/nkiryanov/courseauth/internal/models"
)

type ctxKey string

const (
	userKey   ctxKey = "user"
	claimsKey ctxKey = "claims"
)

// Create a new context with the user and claims of the access token they authenticated with
func New(ctx context.Context, u models.User, claims models.AccessClaims) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, claimsKey, claims)
}

// Extract the user from the context
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// Extract access token claims from the context
func ClaimsFromContext(ctx context.Context) (models.AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey).(models.AccessClaims)
	return c, ok
}
