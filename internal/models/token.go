package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one login cycle bound to an opaque refresh token
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	Active    bool
	CreatedAt time.Time
	ExpiresAt time.Time
	ClosedAt  *time.Time // nil while session is not closed
}

// Expired reports whether the session validity window is over at the given moment
func (s Session) Expired(at time.Time) bool {
	return !s.ExpiresAt.After(at)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by AuthService on login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken

	// Access token lifetime, reported to clients as 'expires_in'
	AccessTTL time.Duration
}

// Verified payload of an access token
type AccessClaims struct {
	TokenID   string
	UserID    uuid.UUID
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c AccessClaims) HasRole(name string) bool {
	for _, r := range c.Roles {
		if r == name {
			return true
		}
	}
	return false
}
