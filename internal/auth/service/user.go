package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bluewhale/auth/internal/auth/domain"
	"github.com/bluewhale/auth/internal/auth/store"
	"github.com/bluewhale/auth/pkg/cryptox"
	"github.com/bluewhale/auth/pkg/idx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInactiveUser       = errors.New("inactive_user")
	ErrDuplicateUser      = errors.New("duplicate_username_or_email")
	ErrWrongPassword      = errors.New("wrong_current_password")
)

type UserService struct {
	Store store.Store
}

// RegisterParams carries the registration request fields.
type RegisterParams struct {
	Username string
	Email    string
	FullName string
	Password string
}

// Register creates a new user with a hashed password. Duplicate usernames
// and emails are rejected with ErrDuplicateUser.
func (s *UserService) Register(ctx context.Context, p RegisterParams) (domain.User, error) {
	username := strings.TrimSpace(p.Username)
	if username == "" || p.Password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	hash, err := cryptox.HashPassword(p.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		FullName:     strings.TrimSpace(p.FullName),
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if email := strings.TrimSpace(p.Email); email != "" {
		u.Email = &email
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrDuplicateUser
		}
		return domain.User{}, err
	}

	return u, nil
}

// Authenticate verifies a username/password pair. Unknown usernames and
// wrong passwords are indistinguishable to the caller; disabled accounts are
// rejected after the password check so probing cannot reveal account state.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}

	if u.Disabled {
		return domain.User{}, ErrInactiveUser
	}

	return u, nil
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// GetUserByUsername fetches a user by username.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.Store.Users().GetUserByUsername(ctx, username)
}

// ProfileUpdateParams carries optional profile mutations. Nil fields are
// left unchanged.
type ProfileUpdateParams struct {
	Email           *string
	FullName        *string
	Password        *string
	CurrentPassword *string
}

// UpdateProfile applies email / full name / password changes for a user.
// Password changes require the current password to re-verify. Email changes
// enforce uniqueness across users.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, p ProfileUpdateParams) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if p.Email != nil && (u.Email == nil || *p.Email != *u.Email) {
		existing, err := s.Store.Users().GetUserByEmail(ctx, *p.Email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.User{}, err
		}
		if err == nil && existing.ID != userID {
			return domain.User{}, ErrDuplicateUser
		}
	}

	if p.Email != nil || p.FullName != nil {
		if err := s.Store.Users().UpdateProfile(ctx, userID, p.Email, p.FullName); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return domain.User{}, ErrDuplicateUser
			}
			return domain.User{}, err
		}
	}

	if p.Password != nil && *p.Password != "" {
		if p.CurrentPassword == nil {
			return domain.User{}, ErrWrongPassword
		}
		if err := cryptox.VerifyPassword(*p.CurrentPassword, u.PasswordHash); err != nil {
			return domain.User{}, ErrWrongPassword
		}

		newHash, err := cryptox.HashPassword(*p.Password)
		if err != nil {
			return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
		}
		if err := s.Store.Users().UpdatePasswordHash(ctx, userID, newHash); err != nil {
			return domain.User{}, err
		}
	}

	return s.Store.Users().GetUserByID(ctx, userID)
}
