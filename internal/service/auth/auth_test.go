package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/models"
	"github.com/nkiryanov/courseauth/internal/repository"
	"github.com/nkiryanov/courseauth/internal/repository/postgres"
	"github.com/nkiryanov/courseauth/internal/service/auth/refreshstore"
	"github.com/nkiryanov/courseauth/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/courseauth/internal/service/denylist"
	"github.com/nkiryanov/courseauth/internal/service/ratelimit"
	"github.com/nkiryanov/courseauth/internal/testutil"
)

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	hash, err := DefaultHasher.Hash("secret123")
	require.NoError(t, err)

	type env struct {
		s       *AuthService
		storage repository.Storage
		user    models.User
		clock   *time.Time
	}

	// Begin new db transaction and create new AuthService with known user 'ana@example.com'
	// Rollback transaction when test stops
	withTx := func(t *testing.T, cfg Config, fn func(e env)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			now := time.Now()
			clock := func() time.Time { return now }

			tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret-key", Now: clock})
			require.NoError(t, err, "token manager should be created without errors")
			refresh, err := refreshstore.New(refreshstore.Config{Now: clock}, storage.Session())
			require.NoError(t, err, "refresh store should be created without errors")

			s, err := NewService(cfg, tokens, refresh, storage)
			require.NoError(t, err, "auth service could't be started")

			user, err := storage.User().CreateUser(t.Context(), repository.CreateUserParams{
				Email:          "ana@example.com",
				HashedPassword: hash,
				FirstName:      "Ana",
				LastName:       "Lopez",
			})
			require.NoError(t, err)

			fn(env{s: s, storage: storage, user: user, clock: &now})
		})
	}

	activeSessions := func(t *testing.T, e env) []models.Session {
		sessions, err := e.storage.Session().ListActive(t.Context(), e.user.ID)
		require.NoError(t, err)
		return sessions
	}

	t.Run("new service requires deps", func(t *testing.T) {
		_, err := NewService(Config{}, nil, nil, nil)

		require.Error(t, err)
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("existing user ok", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				pair, err := e.s.Login(t.Context(), "ana@example.com", "secret123")

				require.NoError(t, err)
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
				require.Equal(t, time.Hour, pair.AccessTTL, "expires_in is one hour by default")

				sessions := activeSessions(t, e)
				require.Len(t, sessions, 1)
				require.Equal(t, pair.Refresh.Value, sessions[0].Token)

				user, err := e.storage.User().GetUserByID(t.Context(), e.user.ID)
				require.NoError(t, err)
				require.NotNil(t, user.LastLoginAt, "last login must be stamped")
			})
		})

		t.Run("role claims in access token", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				role, err := e.storage.Role().CreateRole(t.Context(), "student", "")
				require.NoError(t, err)
				require.NoError(t, e.storage.Role().AssignRole(t.Context(), e.user.ID, role.ID))

				pair, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)

				_, claims, err := e.s.Authenticate(t.Context(), pair.Access.Value)
				require.NoError(t, err)
				require.Equal(t, []string{"student"}, claims.Roles)
			})
		})

		t.Run("login twice keeps one active session", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				first, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)

				second, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)

				sessions := activeSessions(t, e)
				require.Len(t, sessions, 1, "previous session must be closed on new login")
				require.Equal(t, second.Refresh.Value, sessions[0].Token)

				_, err = e.s.Refresh(t.Context(), first.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "superseded refresh token must not work")
			})
		})

		t.Run("email is case insensitive", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				_, err := e.s.Login(t.Context(), "ANA@example.com", "secret123")

				require.NoError(t, err)
			})
		})

		tests := []struct {
			name     string
			email    string
			password string
		}{
			{name: "login fail if wrong password", email: "ana@example.com", password: "wrong"},
			{name: "login fail if user not exists", email: "nobody@example.com", password: "secret123"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withTx(t, Config{}, func(e env) {
					_, err := e.s.Login(t.Context(), tt.email, tt.password)

					require.Error(t, err)
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "both failures look the same")
					require.Empty(t, activeSessions(t, e), "no session must be created")
				})
			})
		}

		t.Run("failed login keeps existing session", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				pair, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)

				_, err = e.s.Login(t.Context(), "ana@example.com", "wrong")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

				sessions := activeSessions(t, e)
				require.Len(t, sessions, 1)
				require.Equal(t, pair.Refresh.Value, sessions[0].Token)
			})
		})

		t.Run("rate limited after too many failures", func(t *testing.T) {
			_, client := testutil.StartRedis(t)
			limiter := ratelimit.New(client, ratelimit.Config{MaxAttempts: 2, Cooldown: time.Minute}, nil)

			withTx(t, Config{Limiter: limiter}, func(e env) {
				for range 2 {
					_, err := e.s.Login(t.Context(), "ana@example.com", "wrong")
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				}

				_, err := e.s.Login(t.Context(), "ana@example.com", "secret123")

				require.ErrorIs(t, err, apperrors.ErrLoginRateLimited, "even right password is rejected while limited")
			})
		})

		t.Run("successful login resets limiter", func(t *testing.T) {
			_, client := testutil.StartRedis(t)
			limiter := ratelimit.New(client, ratelimit.Config{MaxAttempts: 2, Cooldown: time.Minute}, nil)

			withTx(t, Config{Limiter: limiter}, func(e env) {
				_, err := e.s.Login(t.Context(), "ana@example.com", "wrong")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

				_, err = e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)

				attempts, err := limiter.Attempts(t.Context(), "ana@example.com")
				require.NoError(t, err)
				require.Zero(t, attempts)
			})
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("rotate ok", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				login, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)

				refreshed, err := e.s.Refresh(t.Context(), login.Refresh.Value)

				require.NoError(t, err)
				require.NotEqual(t, login.Refresh.Value, refreshed.Refresh.Value, "refresh token must rotate")
				require.NotEqual(t, login.Access.Value, refreshed.Access.Value)

				sessions := activeSessions(t, e)
				require.Len(t, sessions, 1)
				require.Equal(t, refreshed.Refresh.Value, sessions[0].Token)
			})
		})

		t.Run("used token fails second time", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				login, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)
				_, err = e.s.Refresh(t.Context(), login.Refresh.Value)
				require.NoError(t, err)

				_, err = e.s.Refresh(t.Context(), login.Refresh.Value)

				require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "rotated token is closed")
			})
		})

		t.Run("unknown token", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				_, err := e.s.Refresh(t.Context(), uuid.NewString())

				require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
			})
		})

		t.Run("expired token", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				login, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)

				*e.clock = e.clock.Add(61 * time.Minute)
				_, err = e.s.Refresh(t.Context(), login.Refresh.Value)

				require.ErrorIs(t, err, apperrors.ErrSessionExpired)
			})
		})

		t.Run("expired sessions of others closed", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				bob, err := e.storage.User().CreateUser(t.Context(), repository.CreateUserParams{Email: "bob@example.com", HashedPassword: "h"})
				require.NoError(t, err)
				stale, err := e.storage.Session().Create(t.Context(), models.Session{
					ID:        uuid.New(),
					UserID:    bob.ID,
					Token:     uuid.NewString(),
					Active:    true,
					CreatedAt: e.clock.Add(-2 * time.Hour),
					ExpiresAt: e.clock.Add(-time.Hour),
				})
				require.NoError(t, err)

				login, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)
				_, err = e.s.Refresh(t.Context(), login.Refresh.Value)
				require.NoError(t, err)

				got, err := e.storage.Session().GetByToken(t.Context(), stale.Token)
				require.NoError(t, err)
				require.False(t, got.Active, "expired session must be closed after refresh")
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		t.Run("unknown user", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				err := e.s.Logout(t.Context(), models.User{ID: uuid.New()}, models.AccessClaims{TokenID: uuid.NewString()})

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})

		t.Run("closes all sessions", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				login, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)
				user, claims, err := e.s.Authenticate(t.Context(), login.Access.Value)
				require.NoError(t, err)

				err = e.s.Logout(t.Context(), user, claims)
				require.NoError(t, err)

				require.Empty(t, activeSessions(t, e))
				_, err = e.s.Refresh(t.Context(), login.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "refresh after logout must fail")
			})
		})

		t.Run("logout without sessions ok", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				err := e.s.Logout(t.Context(), e.user, models.AccessClaims{TokenID: uuid.NewString()})

				require.NoError(t, err)
			})
		})

		t.Run("access token revoked with denylist", func(t *testing.T) {
			_, client := testutil.StartRedis(t)

			withTx(t, Config{Denylist: denylist.New(client)}, func(e env) {
				login, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)
				user, claims, err := e.s.Authenticate(t.Context(), login.Access.Value)
				require.NoError(t, err)

				require.NoError(t, e.s.Logout(t.Context(), user, claims))

				_, _, err = e.s.Authenticate(t.Context(), login.Access.Value)
				require.ErrorIs(t, err, apperrors.ErrAccessTokenRevoked)
			})
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("valid token", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				login, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
				require.NoError(t, err)

				user, claims, err := e.s.Authenticate(t.Context(), login.Access.Value)

				require.NoError(t, err)
				assert.Equal(t, e.user.ID, user.ID)
				assert.Equal(t, e.user.ID, claims.UserID)
				assert.NotEmpty(t, claims.TokenID)
			})
		})

		t.Run("garbage token", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				_, _, err := e.s.Authenticate(t.Context(), "not-a-jwt")

				require.ErrorIs(t, err, apperrors.ErrInvalidAccessToken)
			})
		})

		t.Run("token of unknown user", func(t *testing.T) {
			withTx(t, Config{}, func(e env) {
				access, err := e.s.tokens.Issue(models.User{ID: uuid.New()}, nil)
				require.NoError(t, err)

				_, _, err = e.s.Authenticate(t.Context(), access.Value)

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("ActiveSessions", func(t *testing.T) {
		withTx(t, Config{}, func(e env) {
			pair, err := e.s.Login(t.Context(), "ana@example.com", "secret123")
			require.NoError(t, err)

			sessions, err := e.s.ActiveSessions(t.Context(), e.user.ID)
			require.NoError(t, err)
			require.Len(t, sessions, 1)
			require.Equal(t, pair.Refresh.Value, sessions[0].Token)

			_, err = e.s.ActiveSessions(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("Roles", func(t *testing.T) {
		withTx(t, Config{}, func(e env) {
			roles, err := e.s.Roles(t.Context(), e.user.ID)

			require.NoError(t, err)
			require.Empty(t, roles)
		})
	})
}
