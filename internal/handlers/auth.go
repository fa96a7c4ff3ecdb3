package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/handlers/render"
	"github.com/nkiryanov/courseauth/internal/handlers/userctx"
	"github.com/nkiryanov/courseauth/internal/logger"
	"github.com/nkiryanov/courseauth/internal/models"
)

const tokenType = "bearer"

type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

func tokenPairResponse(pair models.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:  pair.Access.Value,
		TokenType:    tokenType,
		ExpiresIn:    int64(pair.AccessTTL / time.Second),
		RefreshToken: pair.Refresh.Value,
	}
}

type MessageResponse struct {
	Message string `json:"message"`
}

func handleLogin(s authService, l logger.Logger) http.HandlerFunc {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email,max=255"`
		Password string `json:"password" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			return
		}

		pair, err := s.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrLoginRateLimited):
				render.ServiceError(w, "Too many login attempts", http.StatusTooManyRequests)
			case errors.Is(err, apperrors.ErrSessionConflict):
				render.ServiceError(w, "Session is being opened by other request", http.StatusConflict)
			default:
				l.Error("login failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, tokenPairResponse(pair))
	}
}

func handleRefresh(s authService, l logger.Logger) http.HandlerFunc {
	type RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"notblank"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RefreshRequest](w, r)
		if err != nil {
			return
		}

		pair, err := s.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, apperrors.ErrSessionExpired):
				render.ServiceError(w, "Invalid or expired refresh token", http.StatusBadRequest)
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found", http.StatusNotFound)
			case errors.Is(err, apperrors.ErrSessionConflict):
				render.ServiceError(w, "Session is being opened by other request", http.StatusConflict)
			default:
				l.Error("refresh failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, tokenPairResponse(pair))
	}
}

func handleLogout(s authService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}
		claims, _ := userctx.ClaimsFromContext(r.Context())

		if err := s.Logout(r.Context(), user, claims); err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found", http.StatusNotFound)
			default:
				l.Error("logout failed", "user_id", user.ID, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, MessageResponse{Message: "Successfully logged out"})
	}
}

type UserResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Roles       []string   `json:"roles"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

func handleMe(s authService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}

		roles, err := s.Roles(r.Context(), user.ID)
		if err != nil {
			l.Error("roles could not be read", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, UserResponse{
			ID:          user.ID,
			Email:       user.Email,
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			Roles:       roles,
			LastLoginAt: user.LastLoginAt,
		})
	}
}

type SessionResponse struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	ClosedAt  *time.Time `json:"closed_at"`
}

// Active sessions of any user, tokens are never exposed
func handleUserSessions(s authService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("userID"))
		if err != nil {
			render.ServiceError(w, "Invalid user id", http.StatusUnprocessableEntity)
			return
		}

		sessions, err := s.ActiveSessions(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found", http.StatusNotFound)
			default:
				l.Error("sessions could not be listed", "user_id", userID, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		response := make([]SessionResponse, 0, len(sessions))
		for _, session := range sessions {
			response = append(response, SessionResponse{
				ID:        session.ID,
				UserID:    session.UserID,
				Active:    session.Active,
				CreatedAt: session.CreatedAt,
				ExpiresAt: session.ExpiresAt,
				ClosedAt:  session.ClosedAt,
			})
		}

		render.JSON(w, response)
	}
}
