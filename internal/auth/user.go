// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Field constraints for user records.
const (
	MaxEmailLength = 254
	MaxNameLength  = 100
)

// Role is the binary privilege flag of a user.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role name. An empty name yields RoleUser.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", oops.Code(CodeInvalidInput).
			With("role", s).
			Errorf("role must be %q or %q", RoleUser, RoleAdmin)
	}
}

// NormalizeRole maps a stored role value to a known role.
// Unknown values read back as RoleUser.
func NormalizeRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// User is a persisted user account.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string `json:"-"`
	Name         string
	Role         Role
	CreatedAt    time.Time
}

// NewUser builds a User with a fresh ID after validating its fields.
// The password hash must already be computed.
func NewUser(email, name, passwordHash string, role Role) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash cannot be empty")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleUser
	}
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// IsAdmin reports whether the user carries the admin flag.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser is the externally visible view of a User.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Public returns the user without its password hash.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}

// ValidateEmail checks the shape of an email address. Addresses are
// compared exactly as given; no case folding is applied.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidInput).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeInvalidInput).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d bytes", MaxEmailLength)
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return oops.Code(CodeInvalidInput).Errorf("email must have the form local@domain")
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return oops.Code(CodeInvalidInput).Errorf("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return oops.Code(CodeInvalidInput).
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// UserDirectory manages user persistence.
//
// Lookups that find nothing return an error wrapping ErrNotFound.
// Create returns an error wrapping ErrDuplicateEmail when the email is taken.
type UserDirectory interface {
	// FindByEmail retrieves a user by exact email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID retrieves a user by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)

	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// Delete removes a user.
	Delete(ctx context.Context, id ulid.ULID) error

	// List returns every user ordered by ID.
	List(ctx context.Context) ([]*User, error)

	// UpdatePasswordHash replaces the stored hash for a user.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error
}
