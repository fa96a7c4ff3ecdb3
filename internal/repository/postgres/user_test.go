package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/repository"
	"github.com/nkiryanov/courseauth/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	params := repository.CreateUserParams{
		Email:          "ana@example.com",
		HashedPassword: "hashedpassword123",
		FirstName:      "Ana",
		LastName:       "Lopez",
	}

	t.Run("create user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateUser(t.Context(), params)

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, user.ID)
			assert.Equal(t, "ana@example.com", user.Email)
			assert.Equal(t, "hashedpassword123", user.HashedPassword)
			assert.Equal(t, "Ana", user.FirstName)
			assert.Equal(t, "Lopez", user.LastName)
			assert.Nil(t, user.LastLoginAt, "new user never logged in")
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create user with same email in other case fail", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)

			dup := params
			dup.Email = "ANA@example.com"
			_, err = r.CreateUser(t.Context(), dup)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists, "emails must be unique case insensitive")
		})
	})

	t.Run("get user by id ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created, got)
		})
	})

	t.Run("get user by id not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByID(t.Context(), uuid.New())

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("get user by email case insensitive", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)

			got, err := r.GetUserByEmail(t.Context(), "Ana@Example.COM")

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
		})
	})

	t.Run("get user by email not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByEmail(t.Context(), "nobody@example.com")

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("lock user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)

			locked, err := r.LockUser(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created.ID, locked.ID)

			_, err = r.LockUser(t.Context(), uuid.New())
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("set last login", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)
			at := time.Now().UTC().Truncate(time.Microsecond)

			err = r.SetLastLogin(t.Context(), created.ID, at)
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.NotNil(t, got.LastLoginAt)
			assert.True(t, at.Equal(*got.LastLoginAt), "last login must be stamped")

			err = r.SetLastLogin(t.Context(), uuid.New(), at)
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
