package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courseauth/internal/models"
)

type Storage interface {
	User() UserRepo
	Role() RoleRepo
	Session() SessionRepo

	// Run fn within transaction
	// Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type CreateUserParams struct {
	Email          string
	HashedPassword string
	FirstName      string
	LastName       string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email (email compared case insensitive)
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Same as GetUserByID but row stays locked until transaction ends
	// Serializes session changes of one user
	LockUser(ctx context.Context, userID uuid.UUID) (models.User, error)

	// Stamp the last successful login
	SetLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// Role repository interface
type RoleRepo interface {
	// If role with the name exists already has to return apperrors.ErrRoleAlreadyExists
	CreateRole(ctx context.Context, name string, description string) (models.Role, error)

	// If role not found must return apperrors.ErrRoleNotFound
	GetRoleByName(ctx context.Context, name string) (models.Role, error)

	// Link role to user. Linking twice is not an error
	AssignRole(ctx context.Context, userID uuid.UUID, roleID uuid.UUID) error

	// Role names of the user sorted by name. Empty slice if user has no roles
	RoleNames(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Session repository interface
type SessionRepo interface {
	// Persist new session
	// If user already has an open session must return apperrors.ErrSessionConflict
	Create(ctx context.Context, s models.Session) (models.Session, error)

	// Return the session by refresh token whatever state it is in
	// If not found must return apperrors.ErrSessionNotFound
	GetByToken(ctx context.Context, token string) (models.Session, error)

	// Deactivate session by token and stamp 'closed_at'
	// Closing already closed session is not an error and keeps original 'closed_at'
	Close(ctx context.Context, token string, at time.Time) error

	// Deactivate all open sessions of the user. Returns count of closed sessions
	CloseAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)

	// Deactivate every open session with expires_at <= at. Returns count of closed sessions
	CloseExpired(ctx context.Context, at time.Time) (int64, error)

	// Open sessions of the user (used in tests and diagnostics)
	ListActive(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
}
