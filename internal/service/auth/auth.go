package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/logger"
	"github.com/nkiryanov/courseauth/internal/models"
	"github.com/nkiryanov/courseauth/internal/repository"
	"github.com/nkiryanov/courseauth/internal/service/auth/refreshstore"
	"github.com/nkiryanov/courseauth/internal/service/auth/tokenmanager"
)

// Limits failed logins per email
type LoginLimiter interface {
	// Return apperrors.ErrLoginRateLimited if no attempts left
	Check(ctx context.Context, email string) error
	Fail(ctx context.Context, email string)
	Reset(ctx context.Context, email string)
}

// Keeps ids of access tokens revoked before their expiry
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Config struct {
	// Hasher to compare user passwords
	// DefaultHasher if not set
	Hasher PasswordHasher

	// Optional, nothing is limited or revoked if not set
	Limiter  LoginLimiter
	Denylist Denylist

	Logger logger.Logger
}

// Auth service: login, refresh, logout and access token checks
type AuthService struct {
	hasher   PasswordHasher
	tokens   *tokenmanager.TokenManager
	refresh  *refreshstore.Store
	storage  repository.Storage
	limiter  LoginLimiter
	denylist Denylist
	logger   logger.Logger

	// Hash compared when email is unknown, so both failures cost the same
	dummyHash func() (string, error)
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, refresh *refreshstore.Store, storage repository.Storage) (*AuthService, error) {
	if tokens == nil || refresh == nil || storage == nil {
		return nil, errors.New("token manager, refresh store and storage must not be nil")
	}

	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher
	}
	if cfg.Limiter == nil {
		cfg.Limiter = noLimit{}
	}
	if cfg.Denylist == nil {
		cfg.Denylist = noDenylist{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	hasher := cfg.Hasher

	return &AuthService{
		hasher:    hasher,
		tokens:    tokens,
		refresh:   refresh,
		storage:   storage,
		limiter:   cfg.Limiter,
		denylist:  cfg.Denylist,
		logger:    cfg.Logger,
		dummyHash: sync.OnceValues(func() (string, error) { return hasher.Hash(uuid.NewString()) }),
	}, nil
}

// Verify credentials, close previous sessions of the user and open new one
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	var pair models.TokenPair

	if err := s.limiter.Check(ctx, email); err != nil {
		return pair, err
	}

	user, err := s.verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			s.limiter.Fail(ctx, email)
		}
		return pair, err
	}

	var session models.Session
	var roles []string

	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		if _, err := tx.User().LockUser(ctx, user.ID); err != nil {
			return err
		}

		store := s.refresh.WithRepo(tx.Session())
		if _, err := store.CloseAllForUser(ctx, user.ID); err != nil {
			return err
		}

		session, err = store.Issue(ctx, user.ID)
		if err != nil {
			return err
		}

		if err := tx.User().SetLastLogin(ctx, user.ID, session.CreatedAt); err != nil {
			return err
		}

		roles, err = tx.Role().RoleNames(ctx, user.ID)
		return err
	})
	if err != nil {
		return pair, fmt.Errorf("session could not be opened. Err: %w", err)
	}

	pair, err = s.pair(user, roles, session)
	if err != nil {
		return pair, err
	}

	s.limiter.Reset(ctx, email)
	s.logger.Info("user logged in", "user_id", user.ID)

	return pair, nil
}

// Rotate refresh token: presented one is closed, new pair is issued
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	var pair models.TokenPair

	current, err := s.refresh.Validate(ctx, refreshToken)
	if err != nil {
		return pair, err
	}

	user, err := s.storage.User().GetUserByID(ctx, current.UserID)
	if err != nil {
		return pair, err
	}

	var session models.Session
	var roles []string

	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		if _, err := tx.User().LockUser(ctx, user.ID); err != nil {
			return err
		}

		// Validate again under the lock, concurrent refresh or login may have closed it
		store := s.refresh.WithRepo(tx.Session())
		if _, err := store.Validate(ctx, refreshToken); err != nil {
			return err
		}

		if err := store.Close(ctx, refreshToken); err != nil {
			return err
		}

		session, err = store.Issue(ctx, user.ID)
		if err != nil {
			return err
		}

		roles, err = tx.Role().RoleNames(ctx, user.ID)
		return err
	})
	if err != nil {
		return pair, fmt.Errorf("session could not be rotated. Err: %w", err)
	}

	// Outside of the rotation tx: the sweep must not hold row locks together with the user lock
	swept, err := s.refresh.SweepExpired(ctx)
	switch {
	case err != nil:
		s.logger.Warn("expired sessions could not be closed", "error", err)
	case swept > 0:
		s.logger.Debug("expired sessions closed", "count", swept)
	}

	return s.pair(user, roles, session)
}

// Close every session of the user and revoke the access token used for the call
// Takes the same user lock as login and refresh, so no session opened concurrently survives
func (s *AuthService) Logout(ctx context.Context, user models.User, claims models.AccessClaims) error {
	var closed int64

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		if _, err := tx.User().LockUser(ctx, user.ID); err != nil {
			return err
		}

		var err error
		closed, err = s.refresh.WithRepo(tx.Session()).CloseAllForUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("sessions could not be closed. Err: %w", err)
	}

	if err := s.denylist.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		s.logger.Warn("access token could not be revoked", "user_id", user.ID, "error", err)
	}

	s.logger.Info("user logged out", "user_id", user.ID, "closed_sessions", closed)

	return nil
}

// Resolve the user of an access token
// Invalid or revoked token is apperrors.ErrInvalidAccessToken or apperrors.ErrAccessTokenRevoked,
// valid token of deleted user is apperrors.ErrUserNotFound
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.User, models.AccessClaims, error) {
	claims, err := s.tokens.Parse(access)
	if err != nil {
		return models.User{}, claims, err
	}

	revoked, err := s.denylist.IsRevoked(ctx, claims.TokenID)
	switch {
	case err != nil:
		s.logger.Warn("denylist unavailable, token accepted", "error", err)
	case revoked:
		return models.User{}, claims, apperrors.ErrAccessTokenRevoked
	}

	user, err := s.storage.User().GetUserByID(ctx, claims.UserID)
	if err != nil {
		return user, claims, err
	}

	return user, claims, nil
}

// Current role names of the user
func (s *AuthService) Roles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.storage.Role().RoleNames(ctx, userID)
}

// Open sessions of the user, apperrors.ErrUserNotFound if no such user
func (s *AuthService) ActiveSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	if _, err := s.storage.User().GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	return s.storage.Session().ListActive(ctx, userID)
}

func (s *AuthService) verify(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, email)

	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		if hash, err := s.dummyHash(); err == nil {
			_ = s.hasher.Compare(hash, password)
		}
		return user, apperrors.ErrInvalidCredentials
	case err != nil:
		return user, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return user, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

func (s *AuthService) pair(user models.User, roles []string, session models.Session) (models.TokenPair, error) {
	access, err := s.tokens.Issue(user, roles)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return models.TokenPair{
		Access:    access,
		Refresh:   models.IssuedToken{Value: session.Token, ExpiresAt: session.ExpiresAt},
		AccessTTL: s.tokens.AccessTTL(),
	}, nil
}

type noLimit struct{}

func (noLimit) Check(context.Context, string) error { return nil }
func (noLimit) Fail(context.Context, string)        {}
func (noLimit) Reset(context.Context, string)       {}

type noDenylist struct{}

func (noDenylist) Revoke(context.Context, string, time.Time) error { return nil }
func (noDenylist) IsRevoked(context.Context, string) (bool, error) { return false, nil }
