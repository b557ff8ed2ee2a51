// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.UserDirectory on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// primaryKeyConstraint is the name Postgres gives the users primary key.
const primaryKeyConstraint = "users_pkey"

// poolIface abstracts *pgxpool.Pool so tests can substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectUserColumns = `SELECT id, email, password_hash, name, role, created_at FROM users`

// UserDirectory implements auth.UserDirectory using PostgreSQL.
type UserDirectory struct {
	pool poolIface
}

// NewUserDirectory creates a new UserDirectory.
func NewUserDirectory(pool poolIface) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// FindByEmail retrieves a user by exact email.
func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := d.pool.QueryRow(ctx, selectUserColumns+` WHERE email = $1`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storeError(err, "get user by email")
	}
	return user, nil
}

// FindByID retrieves a user by ID.
func (d *UserDirectory) FindByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := d.pool.QueryRow(ctx, selectUserColumns+` WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storeError(err, "get user by id")
	}
	return user, nil
}

// Create stores a new user. Unique violations on email map to
// auth.ErrDuplicateEmail.
func (d *UserDirectory) Create(ctx context.Context, user *auth.User) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.Name,
		string(user.Role),
		user.CreatedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		if pgErr.ConstraintName == primaryKeyConstraint {
			return oops.Code(auth.CodeDuplicateID).
				With("id", user.ID.String()).
				Wrap(err)
		}
		return oops.Code(auth.CodeDuplicateEmail).
			With("email", user.Email).
			Wrap(errors.Join(auth.ErrDuplicateEmail, err))
	}
	return oops.Code(auth.CodeStoreUnavailable).
		With("operation", "insert user").
		With("email", user.Email).
		Wrap(err)
}

// Delete removes a user.
func (d *UserDirectory) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := d.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return storeError(err, "delete user")
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// List returns every user ordered by ID, which is creation order.
func (d *UserDirectory) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := d.pool.Query(ctx, selectUserColumns+` ORDER BY id`)
	if err != nil {
		return nil, storeError(err, "list users")
	}
	defer rows.Close()

	users := make([]*auth.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storeError(err, "scan user row")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "iterate users")
	}
	return users, nil
}

// UpdatePasswordHash replaces the stored hash for a user.
func (d *UserDirectory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	result, err := d.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id.String(), hash)
	if err != nil {
		return storeError(err, "update password hash")
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// storeError tags a driver failure as STORE_UNAVAILABLE unless it already
// carries a code.
func storeError(err error, operation string) error {
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() != nil {
		return oops.With("operation", operation).Wrap(err)
	}
	return oops.Code(auth.CodeStoreUnavailable).
		With("operation", operation).
		Wrap(err)
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr        string
		email        string
		passwordHash string
		name         string
		role         string
		createdAt    time.Time
	)

	if err := row.Scan(&idStr, &email, &passwordHash, &name, &role, &createdAt); err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         auth.NormalizeRole(role),
		CreatedAt:    createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserDirectory = (*UserDirectory)(nil)
