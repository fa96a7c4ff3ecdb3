package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/handlers/render"
	"github.com/nkiryanov/courseauth/internal/handlers/userctx"
	"github.com/nkiryanov/courseauth/internal/models"
)

const (
	authHeaderName = "Authorization"
	authScheme     = "Bearer"
)

type authenticator interface {
	Authenticate(ctx context.Context, access string) (models.User, models.AccessClaims, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

type AuthMiddleware struct {
	auth   authenticator
	logger errorLogger
}

func NewAuth(auth authenticator, l errorLogger) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, logger: l}
}

// Auth resolves the caller from bearer access token and puts it to request context
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, ok := bearerToken(r)
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user, claims, err := m.auth.Authenticate(r.Context(), access)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		case errors.Is(err, apperrors.ErrInvalidAccessToken), errors.Is(err, apperrors.ErrAccessTokenRevoked):
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		default:
			m.logger.Error("authentication failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		ctx := userctx.New(r.Context(), user, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets through only callers whose access token carries the role
// Must be used after Auth
func RequireRole(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := userctx.ClaimsFromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !claims.HasRole(name) {
				render.ServiceError(w, "Access denied", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get(authHeaderName), " ")
	if !ok || !strings.EqualFold(scheme, authScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
