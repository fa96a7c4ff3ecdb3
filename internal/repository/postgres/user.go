package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/models"
	"github.com/nkiryanov/courseauth/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, email, password_hash, first_name, last_name, last_login_at`

const createUser = `-- name: CreateUser
INSERT INTO users (id, email, password_hash, first_name, last_name)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), params.Email, params.HashedPassword, params.FirstName, params.LastName)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + ` FROM users
WHERE lower(email) = lower($1)
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const lockUser = `-- name: LockUser
SELECT ` + userColumns + ` FROM users
WHERE id = $1
FOR UPDATE
`

func (r *UserRepo) LockUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, lockUser, id)
	return collectUser(rows)
}

const setLastLogin = `-- name: SetLastLogin
UPDATE users
SET last_login_at = $2
WHERE id = $1
`

func (r *UserRepo) SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, setLastLogin, id, at)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrUserNotFound
	default:
		return nil
	}
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Email, &u.HashedPassword, &u.FirstName, &u.LastName, &u.LastLoginAt)
	return u, err
}
