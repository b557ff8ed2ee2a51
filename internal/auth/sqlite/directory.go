// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements auth.UserDirectory on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// DriverName is the database/sql driver registered by go-sqlite3.
const DriverName = "sqlite3"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
	created_at    TEXT NOT NULL
)`

const selectUserColumns = `SELECT id, email, password_hash, name, role, created_at FROM users`

// userRow is the on-disk shape of a user. Timestamps are RFC 3339 text in UTC.
type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Name         string `db:"name"`
	Role         string `db:"role"`
	CreatedAt    string `db:"created_at"`
}

// UserDirectory implements auth.UserDirectory using SQLite.
type UserDirectory struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at dsn and creates the users table
// if it does not exist. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, dsn string) (*UserDirectory, error) {
	db, err := sqlx.ConnectContext(ctx, DriverName, dsn)
	if err != nil {
		return nil, oops.Code(auth.CodeStoreUnavailable).
			With("operation", "open sqlite").
			With("dsn", dsn).
			Wrap(err)
	}
	// SQLite serializes writers, and each :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	dir, err := NewUserDirectory(ctx, db)
	if err != nil {
		_ = db.Close() //nolint:errcheck // schema error takes precedence
		return nil, err
	}
	return dir, nil
}

// NewUserDirectory wraps an open database and ensures the schema exists.
func NewUserDirectory(ctx context.Context, db *sqlx.DB) (*UserDirectory, error) {
	if db == nil {
		return nil, oops.Code(auth.CodeStoreUnavailable).Errorf("database is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, oops.Code(auth.CodeStoreUnavailable).
			With("operation", "create users table").
			Wrap(err)
	}
	return &UserDirectory{db: db}, nil
}

// Ping reports whether the database is reachable.
func (d *UserDirectory) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return oops.Code(auth.CodeStoreUnavailable).With("operation", "ping sqlite").Wrap(err)
	}
	return nil
}

// Close releases the database handle.
func (d *UserDirectory) Close() error {
	if err := d.db.Close(); err != nil {
		return oops.With("operation", "close sqlite").Wrap(err)
	}
	return nil
}

// FindByEmail retrieves a user by exact email.
func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var row userRow
	err := d.db.GetContext(ctx, &row, selectUserColumns+` WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storeError(err, "get user by email")
	}
	return row.toUser()
}

// FindByID retrieves a user by ID.
func (d *UserDirectory) FindByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	var row userRow
	err := d.db.GetContext(ctx, &row, selectUserColumns+` WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storeError(err, "get user by id")
	}
	return row.toUser()
}

// Create stores a new user.
func (d *UserDirectory) Create(ctx context.Context, user *auth.User) error {
	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, created_at)
		VALUES (:id, :email, :password_hash, :name, :role, :created_at)
	`, fromUser(user))
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			strings.Contains(sqliteErr.Error(), "users.id") {
			return oops.Code(auth.CodeDuplicateID).
				With("id", user.ID.String()).
				Wrap(err)
		}
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return oops.Code(auth.CodeDuplicateEmail).
				With("email", user.Email).
				Wrap(errors.Join(auth.ErrDuplicateEmail, err))
		}
	}
	return oops.Code(auth.CodeStoreUnavailable).
		With("operation", "insert user").
		With("email", user.Email).
		Wrap(err)
}

// Delete removes a user.
func (d *UserDirectory) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return storeError(err, "delete user")
	}
	return requireAffected(result, id)
}

// List returns every user ordered by ID.
func (d *UserDirectory) List(ctx context.Context) ([]*auth.User, error) {
	var rows []userRow
	if err := d.db.SelectContext(ctx, &rows, selectUserColumns+` ORDER BY id`); err != nil {
		return nil, storeError(err, "list users")
	}

	users := make([]*auth.User, 0, len(rows))
	for i := range rows {
		user, err := rows[i].toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// UpdatePasswordHash replaces the stored hash for a user.
func (d *UserDirectory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	result, err := d.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id.String())
	if err != nil {
		return storeError(err, "update password hash")
	}
	return requireAffected(result, id)
}

func requireAffected(result sql.Result, id ulid.ULID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return storeError(err, "rows affected")
	}
	if n == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func storeError(err error, operation string) error {
	return oops.Code(auth.CodeStoreUnavailable).
		With("operation", operation).
		Wrap(err)
}

func fromUser(u *auth.User) userRow {
	return userRow{
		ID:           u.ID.String(),
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r *userRow) toUser() (*auth.User, error) {
	id, err := ulid.Parse(r.ID)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", r.ID).
			Wrap(err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, oops.Code("USER_INVALID_TIMESTAMP").
			With("operation", "parse created_at").
			With("id", r.ID).
			Wrap(err)
	}
	return &auth.User{
		ID:           id,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Name:         r.Name,
		Role:         auth.NormalizeRole(r.Role),
		CreatedAt:    createdAt.UTC(),
	}, nil
}

// Compile-time interface check.
var _ auth.UserDirectory = (*UserDirectory)(nil)
