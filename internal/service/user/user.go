package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/models"
	"github.com/nkiryanov/courseauth/internal/repository"
	"github.com/nkiryanov/courseauth/internal/service/auth"
)

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
}

type NewUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
	}
}

func (s *UserService) CreateUser(ctx context.Context, u NewUser) (models.User, error) {
	var user models.User

	email := strings.TrimSpace(u.Email)
	if email == "" || u.Password == "" {
		return user, errors.New("email and password must not be empty")
	}

	hash, err := s.hasher.Hash(u.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Email:          email,
		HashedPassword: hash,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Return user with the email, create it if not exists. Password of existing user is kept
func (s *UserService) EnsureUser(ctx context.Context, u NewUser) (user models.User, created bool, err error) {
	user, err = s.storage.User().GetUserByEmail(ctx, u.Email)
	switch {
	case err == nil:
		return user, false, nil
	case !errors.Is(err, apperrors.ErrUserNotFound):
		return user, false, err
	}

	user, err = s.CreateUser(ctx, u)
	return user, err == nil, err
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// Return role with the name, create it if not exists
func (s *UserService) EnsureRole(ctx context.Context, name string, description string) (role models.Role, created bool, err error) {
	role, err = s.storage.Role().GetRoleByName(ctx, name)
	switch {
	case err == nil:
		return role, false, nil
	case !errors.Is(err, apperrors.ErrRoleNotFound):
		return role, false, err
	}

	role, err = s.storage.Role().CreateRole(ctx, name, description)
	if err != nil {
		return role, false, fmt.Errorf("can't create role. Err: %w", err)
	}

	return role, true, nil
}

// Link role by its name to the user
func (s *UserService) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	role, err := s.storage.Role().GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}

	return s.storage.Role().AssignRole(ctx, userID, role.ID)
}
