package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/authz"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// TokenVerifier resolves a bearer token to the user id in its subject.
type TokenVerifier interface {
	UserID(token string) (uuid.UUID, error)
}

// PrincipalLoader returns the current role and status of a user.
type PrincipalLoader interface {
	Principal(ctx context.Context, userID uuid.UUID) (domain.Principal, error)
}

// Auth creates middleware that validates bearer tokens and attaches the
// principal to the request context. Role and status are always read through
// loader, never from the token. Inactive accounts are rejected.
func Auth(tokens TokenVerifier, loader PrincipalLoader, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := httputil.BearerToken(r)
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			userID, err := tokens.UserID(token)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			p, err := loader.Principal(r.Context(), userID)
			if domain.IsNotFound(err) {
				httputil.Error(w, http.StatusUnauthorized, "unknown principal")
				return
			}
			if err != nil {
				httputil.ErrorFrom(w, r, log, err)
				return
			}
			if !p.IsActive() {
				httputil.Error(w, http.StatusForbidden, authz.ReasonInactive)
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the request context.
func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	return domain.PrincipalFromContext(ctx)
}
