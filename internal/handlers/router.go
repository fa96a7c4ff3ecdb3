package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/courseauth/internal/handlers/middleware"
	"github.com/nkiryanov/courseauth/internal/logger"
	"github.com/nkiryanov/courseauth/internal/models"
)

// Role allowed to inspect sessions of other users
const AdminRole = "admin"

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	health pinger,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.NewAuth(authService, logger)
	withAuth := func(h http.Handler, mds ...func(http.Handler) http.Handler) http.Handler {
		return chain(h, append([]func(http.Handler) http.Handler{authMiddleware.Auth}, mds...)...)
	}

	mux := http.NewServeMux()

	mux.Handle("POST /auth", handleLogin(authService, logger))
	mux.Handle("POST /auth/refresh", handleRefresh(authService, logger))
	mux.Handle("POST /auth/cerrar-sesion", withAuth(handleLogout(authService, logger)))
	mux.Handle("GET /auth/me", withAuth(handleMe(authService, logger)))
	mux.Handle("GET /auth/sesiones/{userID}", withAuth(handleUserSessions(authService, logger), middleware.RequireRole(AdminRole)))

	mux.Handle("GET /health", handleHealth(health, logger))

	handler := chain(mux,
		middleware.LoggerMiddleware(logger),
		middleware.RecoveryMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login user with email and password
	// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
	// and apperrors.ErrLoginRateLimited if too many failures happened
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Rotate tokens using refresh token
	// If token expired: has to return apperrors.ErrSessionExpired
	// If token not found or closed: has to return apperrors.ErrSessionNotFound
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Close all sessions of the user
	Logout(ctx context.Context, user models.User, claims models.AccessClaims) error

	// Resolve user from access token
	Authenticate(ctx context.Context, access string) (models.User, models.AccessClaims, error)

	Roles(ctx context.Context, userID uuid.UUID) ([]string, error)
	ActiveSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}
