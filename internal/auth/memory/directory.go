// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-memory auth.UserDirectory for tests and
// single-process development servers.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// UserDirectory is an in-memory auth.UserDirectory. Returned users are copies.
type UserDirectory struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

var _ auth.UserDirectory = (*UserDirectory)(nil)

// NewUserDirectory creates an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// FindByEmail retrieves a user by exact email.
func (d *UserDirectory) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	u := *d.byID[id]
	return &u, nil
}

// FindByID retrieves a user by ID.
func (d *UserDirectory) FindByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.byID[id]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	u := *user
	return &u, nil
}

// Create stores a new user.
func (d *UserDirectory) Create(_ context.Context, user *auth.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byEmail[user.Email]; ok {
		return oops.Code(auth.CodeDuplicateEmail).
			With("email", user.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if _, ok := d.byID[user.ID]; ok {
		return oops.Code(auth.CodeDuplicateID).
			With("id", user.ID.String()).
			Errorf("user id already exists")
	}

	u := *user
	d.byID[u.ID] = &u
	d.byEmail[u.Email] = u.ID
	return nil
}

// Delete removes a user.
func (d *UserDirectory) Delete(_ context.Context, id ulid.ULID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.byID[id]
	if !ok {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	delete(d.byEmail, user.Email)
	delete(d.byID, id)
	return nil
}

// List returns every user ordered by ID.
func (d *UserDirectory) List(_ context.Context) ([]*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := make([]*auth.User, 0, len(d.byID))
	for _, user := range d.byID {
		u := *user
		users = append(users, &u)
	}
	slices.SortFunc(users, func(a, b *auth.User) int {
		return a.ID.Compare(b.ID)
	})
	return users, nil
}

// UpdatePasswordHash replaces the stored hash for a user.
func (d *UserDirectory) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.byID[id]
	if !ok {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	user.PasswordHash = hash
	return nil
}
