// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Registration is a self-service signup request.
type Registration struct {
	Email    string
	Password string
	Name     string
}

// CreateUserInput is an administrative create request. ID is optional.
type CreateUserInput struct {
	ID       *ulid.ULID
	Email    string
	Password string
	Name     string
	Role     Role
}

// AccountService manages user records.
type AccountService struct {
	users  UserDirectory
	hasher PasswordHasher
	logger *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(users UserDirectory, hasher PasswordHasher) (*AccountService, error) {
	return NewAccountServiceWithLogger(users, hasher, slog.Default())
}

// NewAccountServiceWithLogger creates a new AccountService with an explicit logger.
func NewAccountServiceWithLogger(users UserDirectory, hasher PasswordHasher, logger *slog.Logger) (*AccountService, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user directory is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	return &AccountService{users: users, hasher: hasher, logger: logger}, nil
}

// Register creates a user with the default role. It fails with
// AUTH_DUPLICATE_EMAIL, without writing anything, when the email is taken.
//
// The existence check and the insert are not atomic; a concurrent
// registration for the same email is caught by the store's unique index.
func (s *AccountService) Register(ctx context.Context, reg Registration) (*User, error) {
	return s.create(ctx, CreateUserInput{
		Email:    reg.Email,
		Password: reg.Password,
		Name:     reg.Name,
		Role:     RoleUser,
	})
}

// Create adds a user on behalf of an administrator.
func (s *AccountService) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	role, err := ParseRole(string(in.Role))
	if err != nil {
		return nil, err
	}
	in.Role = role
	return s.create(ctx, in)
}

func (s *AccountService) create(ctx context.Context, in CreateUserInput) (*User, error) {
	if err := ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := ValidateName(in.Name); err != nil {
		return nil, err
	}

	_, err := s.users.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, oops.Code(CodeDuplicateEmail).
			With("email", in.Email).
			Wrap(ErrDuplicateEmail)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.With("operation", "find user by email").Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(in.Email, in.Name, hash, in.Role)
	if err != nil {
		return nil, err
	}
	if in.ID != nil {
		if in.ID.IsZero() {
			return nil, oops.Code(CodeInvalidInput).Errorf("id cannot be zero")
		}
		user.ID = *in.ID
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, oops.With("operation", "create user").
			With("email", in.Email).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user created",
		"user_id", user.ID.String(),
		"role", string(user.Role))
	return user, nil
}

// List returns every user.
func (s *AccountService) List(ctx context.Context) ([]*User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, oops.With("operation", "list users").Wrap(err)
	}
	return users, nil
}

// Get returns the user with the given ID.
func (s *AccountService) Get(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).
				With("user_id", id.String()).
				Wrap(err)
		}
		return nil, oops.With("operation", "find user by id").Wrap(err)
	}
	return user, nil
}

// Delete removes the user with the given ID.
func (s *AccountService) Delete(ctx context.Context, id ulid.ULID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeUserNotFound).
				With("user_id", id.String()).
				Wrap(err)
		}
		return oops.With("operation", "delete user").
			With("user_id", id.String()).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id.String())
	return nil
}
