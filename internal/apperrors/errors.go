package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrRoleAlreadyExists = errors.New("role already exists")
	ErrRoleNotFound      = errors.New("role not found")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session is expired")
	ErrSessionConflict = errors.New("user already has an active session")

	ErrInvalidAccessToken = errors.New("access token is invalid or expired")
	ErrAccessTokenRevoked = errors.New("access token is revoked")
	ErrLoginRateLimited   = errors.New("too many login attempts")
)
