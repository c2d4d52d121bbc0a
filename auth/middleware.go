package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/httpx"
)

// Authorize verifies the Bearer token on the request and, when roles are
// given, requires the caller's role to be one of them. The verified claims
// are stored in the request context for handlers to read with
// ClaimsFromContext.
func Authorize(tokens *Tokens, roles ...Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				httpx.WriteError(w, r, apperror.NewAuthError("You are not authorized", nil))
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				httpx.WriteError(w, r, apperror.NewAuthError("Invalid Token", err))
				return
			}

			if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
				httpx.WriteError(w, r, apperror.NewForbiddenError("You don't have permission to access this api", nil))
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. A bare token without the scheme is accepted as well.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found {
		return header, true
	}
	if !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
