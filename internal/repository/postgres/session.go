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
)

type SessionRepo struct {
	DB DBTX
}

const sessionColumns = `id, user_id, token, active, created_at, expires_at, closed_at`

const createSession = `-- name: CreateSession
INSERT INTO sessions (id, user_id, token, active, created_at, expires_at, closed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + sessionColumns

func (r *SessionRepo) Create(ctx context.Context, s models.Session) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, createSession, s.ID, s.UserID, s.Token, s.Active, s.CreatedAt, s.ExpiresAt, s.ClosedAt)
	created, err := pgx.CollectOneRow(rows, rowToSession)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return created, fmt.Errorf("repo error: %w", apperrors.ErrSessionConflict)
			case pgerrcode.ForeignKeyViolation:
				return created, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
			}
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getSessionByToken = `-- name: GetSessionByToken
SELECT ` + sessionColumns + `
FROM sessions
WHERE token = $1
`

// Return session even it is closed or expired
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getSessionByToken, token)
	s, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, pgx.ErrNoRows):
		return s, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	default:
		return s, fmt.Errorf("db error: %w", err)
	}
}

const closeSession = `-- name: CloseSession
UPDATE sessions
SET active = FALSE, closed_at = COALESCE(closed_at, $2)
WHERE token = $1
`

func (r *SessionRepo) Close(ctx context.Context, token string, at time.Time) error {
	tag, err := r.DB.Exec(ctx, closeSession, token, at)

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	default:
		return nil
	}
}

const closeUserSessions = `-- name: CloseUserSessions
UPDATE sessions
SET active = FALSE, closed_at = $2
WHERE user_id = $1 AND active AND closed_at IS NULL
`

func (r *SessionRepo) CloseAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, closeUserSessions, userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Rows locked by a running login, refresh or logout are skipped, the next sweep gets them
const closeExpiredSessions = `-- name: CloseExpiredSessions
UPDATE sessions
SET active = FALSE, closed_at = $1
WHERE id IN (
	SELECT id FROM sessions
	WHERE active AND closed_at IS NULL AND expires_at <= $1
	ORDER BY id
	FOR UPDATE SKIP LOCKED
)
`

func (r *SessionRepo) CloseExpired(ctx context.Context, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, closeExpiredSessions, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const listActiveSessions = `-- name: ListActiveSessions
SELECT ` + sessionColumns + `
FROM sessions
WHERE user_id = $1 AND active AND closed_at IS NULL
ORDER BY created_at
`

func (r *SessionRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	rows, _ := r.DB.Query(ctx, listActiveSessions, userID)
	sessions, err := pgx.CollectRows(rows, rowToSession)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sessions, nil
}

func rowToSession(row pgx.CollectableRow) (models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.Active, &s.CreatedAt, &s.ExpiresAt, &s.ClosedAt)
	return s, err
}
