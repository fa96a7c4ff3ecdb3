package refreshstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/models"
	"github.com/nkiryanov/courseauth/internal/repository"
)

const defaultRefreshTokenTTL = 60 * time.Minute

type Config struct {
	// Refresh token lifetime
	// If not set than default is used
	RefreshTTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

// Store keeps opaque refresh tokens as session rows
type Store struct {
	sessions   repository.SessionRepo
	refreshTTL time.Duration
	now        func() time.Time
}

func New(cfg Config, sessions repository.SessionRepo) (*Store, error) {
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}
	if cfg.RefreshTTL < 0 {
		return nil, errors.New("refresh token ttl must be positive")
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Store{
		sessions:   sessions,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}, nil
}

// WithRepo returns store copy bound to other session repo, e.g. the transactional one
func (s *Store) WithRepo(sessions repository.SessionRepo) *Store {
	c := *s
	c.sessions = sessions
	return &c
}

func (s *Store) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Issue new active session with random refresh token
func (s *Store) Issue(ctx context.Context, userID uuid.UUID) (models.Session, error) {
	now := s.now().UTC().Truncate(time.Microsecond)

	token, err := uuid.NewRandom()
	if err != nil {
		return models.Session{}, fmt.Errorf("error while generate refresh token. Err: %w", err)
	}

	session, err := s.sessions.Create(ctx, models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token.String(),
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return session, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return session, nil
}

// Validate returns the session only if it is active and not expired
// Unknown or closed token is apperrors.ErrSessionNotFound, expired one is apperrors.ErrSessionExpired
func (s *Store) Validate(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, apperrors.ErrSessionNotFound
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return session, err
	}

	switch {
	case !session.Active || session.ClosedAt != nil:
		return session, fmt.Errorf("session closed: %w", apperrors.ErrSessionNotFound)
	case session.Expired(s.now()):
		return session, apperrors.ErrSessionExpired
	default:
		return session, nil
	}
}

func (s *Store) Close(ctx context.Context, token string) error {
	return s.sessions.Close(ctx, token, s.now())
}

func (s *Store) CloseAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.sessions.CloseAllForUser(ctx, userID, s.now())
}

// SweepExpired closes every active session that is already expired
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	return s.sessions.CloseExpired(ctx, s.now())
}
