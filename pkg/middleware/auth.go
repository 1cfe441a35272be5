// Package middleware provides HTTP middleware for authentication and
// per-user rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/plugmart/plugmart/pkg/auth"
	"github.com/plugmart/plugmart/pkg/contextkeys"
	"github.com/plugmart/plugmart/pkg/httputil"
)

// Authenticator resolves a bearer token to an identity
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

// Auth requires a valid bearer token and attaches the resolved identity
// to the request context. Requests without a valid token get a 401.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.WriteUnauthorized(w, "missing bearer token")
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				httputil.WriteServiceError(w, err)
				return
			}

			ctx := contextkeys.WithAuth(r.Context(), identity)
			ctx = contextkeys.WithUserID(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
