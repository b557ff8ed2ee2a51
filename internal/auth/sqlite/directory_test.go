// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/sqlite"
	"github.com/holomush/accounts/pkg/errutil"
)

func newDirectory(t *testing.T) *sqlite.UserDirectory {
	t.Helper()
	dir, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	return dir
}

func newUser(t *testing.T, email string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, "Test User", "$argon2id$hash", auth.RoleUser)
	require.NoError(t, err)
	return user
}

func TestUserDirectory_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	user := newUser(t, "alice@example.com")
	user.Role = auth.RoleAdmin

	require.NoError(t, dir.Create(ctx, user))

	t.Run("by email", func(t *testing.T) {
		got, err := dir.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, auth.RoleAdmin, got.Role)
		assert.True(t, user.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, user.PasswordHash, got.PasswordHash)
	})

	t.Run("by id", func(t *testing.T) {
		got, err := dir.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)
	})

	t.Run("email lookup is case-sensitive", func(t *testing.T) {
		_, err := dir.FindByEmail(ctx, "Alice@example.com")
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := dir.FindByID(ctx, ulid.Make())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
	})
}

func TestUserDirectory_CreateDuplicates(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	first := newUser(t, "bob@example.com")
	require.NoError(t, dir.Create(ctx, first))

	t.Run("email", func(t *testing.T) {
		err := dir.Create(ctx, newUser(t, "bob@example.com"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrDuplicateEmail))
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
	})

	t.Run("id", func(t *testing.T) {
		clash := newUser(t, "other@example.com")
		clash.ID = first.ID
		err := dir.Create(ctx, clash)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateID)
	})
}

func TestUserDirectory_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	users, err := dir.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	first := newUser(t, "first@example.com")
	second := newUser(t, "second@example.com")
	require.NoError(t, dir.Create(ctx, first))
	require.NoError(t, dir.Create(ctx, second))

	users, err = dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, first.ID, users[0].ID)
	assert.Equal(t, second.ID, users[1].ID)

	require.NoError(t, dir.Delete(ctx, first.ID))
	err = dir.Delete(ctx, first.ID)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)

	users, err = dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, second.ID, users[0].ID)
}

func TestUserDirectory_UpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	user := newUser(t, "carol@example.com")
	require.NoError(t, dir.Create(ctx, user))

	require.NoError(t, dir.UpdatePasswordHash(ctx, user.ID, "$argon2id$new"))
	got, err := dir.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "$argon2id$new", got.PasswordHash)

	err = dir.UpdatePasswordHash(ctx, ulid.Make(), "$argon2id$new")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
}

func TestUserDirectory_ConcurrentCreateSameEmail(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := auth.NewUser("race@example.com", "Racer", "$argon2id$hash", auth.RoleUser)
			if err != nil {
				return
			}
			if dir.Create(ctx, user) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestOpen_PersistsAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")

	dir, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	user := newUser(t, "durable@example.com")
	require.NoError(t, dir.Create(ctx, user))
	require.NoError(t, dir.Ping(ctx))
	require.NoError(t, dir.Close())

	reopened, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck // test cleanup

	got, err := reopened.FindByEmail(ctx, "durable@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}
