package auth

import (
	"context"

	"github.com/user/postboard-go/apperror"
)

type contextKey string

const claimsContextKey contextKey = "auth_claims"

// NewContextWithClaims returns a child context carrying claims.
func NewContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts the claims stored by Authorize.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// RequireClaims is ClaimsFromContext for handlers mounted behind Authorize.
// A missing value means the route was wired without the middleware.
func RequireClaims(ctx context.Context) (*Claims, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, apperror.NewAuthError("You are not authorized", nil)
	}
	return claims, nil
}
