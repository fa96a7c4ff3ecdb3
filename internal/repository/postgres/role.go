package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/models"
)

type RoleRepo struct {
	DB DBTX
}

const createRole = `-- name: CreateRole
INSERT INTO roles (id, name, description)
VALUES ($1, $2, $3)
RETURNING id, created_at, name, description
`

func (r *RoleRepo) CreateRole(ctx context.Context, name string, description string) (models.Role, error) {
	rows, _ := r.DB.Query(ctx, createRole, uuid.New(), name, description)
	role, err := pgx.CollectOneRow(rows, rowToRole)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return role, apperrors.ErrRoleAlreadyExists
		}

		return role, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}

const getRoleByName = `-- name: GetRoleByName
SELECT id, created_at, name, description FROM roles
WHERE name = $1
`

func (r *RoleRepo) GetRoleByName(ctx context.Context, name string) (models.Role, error) {
	rows, _ := r.DB.Query(ctx, getRoleByName, name)
	role, err := pgx.CollectOneRow(rows, rowToRole)

	switch {
	case err == nil:
		return role, nil
	case errors.Is(err, pgx.ErrNoRows):
		return role, apperrors.ErrRoleNotFound
	default:
		return role, fmt.Errorf("db error: %w", err)
	}
}

const assignRole = `-- name: AssignRole
INSERT INTO user_roles (user_id, role_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

func (r *RoleRepo) AssignRole(ctx context.Context, userID uuid.UUID, roleID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, assignRole, userID, roleID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			switch pgErr.ConstraintName {
			case "user_roles_user_id_fkey":
				return apperrors.ErrUserNotFound
			default:
				return apperrors.ErrRoleNotFound
			}
		}

		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const roleNames = `-- name: RoleNames
SELECT r.name
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1
ORDER BY r.name
`

func (r *RoleRepo) RoleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, _ := r.DB.Query(ctx, roleNames, userID)
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if names == nil {
		names = []string{}
	}

	return names, nil
}

func rowToRole(row pgx.CollectableRow) (models.Role, error) {
	var role models.Role
	err := row.Scan(&role.ID, &role.CreatedAt, &role.Name, &role.Description)
	return role, err
}
