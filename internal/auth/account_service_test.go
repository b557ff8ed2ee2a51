// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/memory"
	"github.com/holomush/accounts/internal/auth/mocks"
	"github.com/holomush/accounts/pkg/errutil"
)

func TestNewAccountService_NilDependencies(t *testing.T) {
	_, err := auth.NewAccountService(nil, mocks.NewMockPasswordHasher(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user directory is required")

	_, err = auth.NewAccountService(mocks.NewMockUserDirectory(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password hasher is required")

	_, err = auth.NewAccountServiceWithLogger(mocks.NewMockUserDirectory(t), mocks.NewMockPasswordHasher(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger")
}

func TestAccountService_Register(t *testing.T) {
	ctx := context.Background()
	notFound := oops.Code(auth.CodeUserNotFound).Wrap(auth.ErrNotFound)

	t.Run("creates user with hashed password and default role", func(t *testing.T) {
		users := mocks.NewMockUserDirectory(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewAccountService(users, hasher)
		require.NoError(t, err)

		users.On("FindByEmail", ctx, "alice@example.com").Return(nil, notFound)
		hasher.On("Hash", "secret").Return(storedHash, nil)
		users.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.Email == "alice@example.com" &&
				u.PasswordHash == storedHash &&
				u.Name == "Alice" &&
				u.Role == auth.RoleUser &&
				!u.ID.IsZero()
		})).Return(nil)

		user, err := svc.Register(ctx, auth.Registration{Email: "alice@example.com", Password: "secret", Name: "Alice"})
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.NotEqual(t, "secret", user.PasswordHash)
	})

	t.Run("duplicate email fails without mutation", func(t *testing.T) {
		users := mocks.NewMockUserDirectory(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewAccountService(users, hasher)
		require.NoError(t, err)

		users.On("FindByEmail", ctx, "alice@example.com").Return(&auth.User{ID: ulid.Make()}, nil)

		_, err = svc.Register(ctx, auth.Registration{Email: "alice@example.com", Password: "secret", Name: "Alice"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
		assert.True(t, errors.Is(err, auth.ErrDuplicateEmail))
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		hasher.AssertNotCalled(t, "Hash", mock.Anything)
	})

	t.Run("lost race surfaces store duplicate", func(t *testing.T) {
		users := mocks.NewMockUserDirectory(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewAccountService(users, hasher)
		require.NoError(t, err)

		users.On("FindByEmail", ctx, "alice@example.com").Return(nil, notFound)
		hasher.On("Hash", "secret").Return(storedHash, nil)
		users.On("Create", ctx, mock.AnythingOfType("*auth.User")).
			Return(oops.Code(auth.CodeDuplicateEmail).Wrap(auth.ErrDuplicateEmail))

		_, err = svc.Register(ctx, auth.Registration{Email: "alice@example.com", Password: "secret", Name: "Alice"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
	})

	t.Run("hashing failure", func(t *testing.T) {
		users := mocks.NewMockUserDirectory(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewAccountService(users, hasher)
		require.NoError(t, err)

		users.On("FindByEmail", ctx, "alice@example.com").Return(nil, notFound)
		hasher.On("Hash", "secret").Return("", oops.Code(auth.CodeHashingFailed).Errorf("entropy exhausted"))

		_, err = svc.Register(ctx, auth.Registration{Email: "alice@example.com", Password: "secret", Name: "Alice"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeHashingFailed)
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("store unavailable on lookup", func(t *testing.T) {
		users := mocks.NewMockUserDirectory(t)
		svc, err := auth.NewAccountService(users, mocks.NewMockPasswordHasher(t))
		require.NoError(t, err)

		users.On("FindByEmail", ctx, "alice@example.com").
			Return(nil, oops.Code(auth.CodeStoreUnavailable).Errorf("connection refused"))

		_, err = svc.Register(ctx, auth.Registration{Email: "alice@example.com", Password: "secret", Name: "Alice"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)
	})

	invalid := []struct {
		name string
		reg  auth.Registration
	}{
		{"empty email", auth.Registration{Password: "x", Name: "A"}},
		{"email without at", auth.Registration{Email: "alice", Password: "x", Name: "A"}},
		{"email without domain", auth.Registration{Email: "alice@", Password: "x", Name: "A"}},
		{"empty name", auth.Registration{Email: "a@example.com", Password: "x", Name: " "}},
	}
	for _, tt := range invalid {
		t.Run(tt.name+" is rejected before the store", func(t *testing.T) {
			svc, err := auth.NewAccountService(mocks.NewMockUserDirectory(t), mocks.NewMockPasswordHasher(t))
			require.NoError(t, err)

			_, err = svc.Register(ctx, tt.reg)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
		})
	}
}

func TestAccountService_RegisterTwiceInMemory(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserDirectory()
	svc, err := auth.NewAccountService(users, newFastHasher(t))
	require.NoError(t, err)

	_, err = svc.Register(ctx, auth.Registration{Email: "a@x.io", Password: "pw1", Name: "A"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, auth.Registration{Email: "a@x.io", Password: "pw2", Name: "B"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)

	all, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "A", all[0].Name)
}

func TestAccountService_ConcurrentRegisterSameEmail(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserDirectory()
	svc, err := auth.NewAccountService(users, newFastHasher(t))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Register(ctx, auth.Registration{Email: "race@x.io", Password: "pw", Name: "R"})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
	}
	assert.Equal(t, 1, succeeded)
}

func TestAccountService_Create(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserDirectory()
	svc, err := auth.NewAccountService(users, newFastHasher(t))
	require.NoError(t, err)

	t.Run("explicit id and admin role", func(t *testing.T) {
		id := ulid.Make()
		user, err := svc.Create(ctx, auth.CreateUserInput{
			ID: &id, Email: "root@x.io", Password: "pw", Name: "Root", Role: auth.RoleAdmin,
		})
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.True(t, user.IsAdmin())
	})

	t.Run("empty role defaults to user", func(t *testing.T) {
		user, err := svc.Create(ctx, auth.CreateUserInput{Email: "plain@x.io", Password: "pw", Name: "Plain"})
		require.NoError(t, err)
		assert.Equal(t, auth.RoleUser, user.Role)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, auth.CreateUserInput{Email: "x@x.io", Password: "pw", Name: "X", Role: "owner"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("zero id is rejected", func(t *testing.T) {
		var zero ulid.ULID
		_, err := svc.Create(ctx, auth.CreateUserInput{ID: &zero, Email: "z@x.io", Password: "pw", Name: "Z"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("reused id is rejected", func(t *testing.T) {
		id := ulid.Make()
		_, err := svc.Create(ctx, auth.CreateUserInput{ID: &id, Email: "first@x.io", Password: "pw", Name: "F"})
		require.NoError(t, err)

		_, err = svc.Create(ctx, auth.CreateUserInput{ID: &id, Email: "second@x.io", Password: "pw", Name: "S"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateID)
	})
}

func TestAccountService_GetListDelete(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserDirectory()
	svc, err := auth.NewAccountService(users, newFastHasher(t))
	require.NoError(t, err)

	alice, err := svc.Register(ctx, auth.Registration{Email: "alice@x.io", Password: "pw", Name: "Alice"})
	require.NoError(t, err)
	bob, err := svc.Register(ctx, auth.Registration{Email: "bob@x.io", Password: "pw", Name: "Bob"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, alice.ID, all[0].ID)
	assert.Equal(t, bob.ID, all[1].ID)

	require.NoError(t, svc.Delete(ctx, alice.ID))

	_, err = svc.Get(ctx, alice.ID)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)

	err = svc.Delete(ctx, alice.ID)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
}

func TestAccountService_StoreErrorsKeepCode(t *testing.T) {
	ctx := context.Background()
	storeErr := oops.Code(auth.CodeStoreUnavailable).Errorf("connection refused")
	id := ulid.Make()

	users := mocks.NewMockUserDirectory(t)
	svc, err := auth.NewAccountService(users, mocks.NewMockPasswordHasher(t))
	require.NoError(t, err)

	users.On("List", ctx).Return(nil, storeErr)
	users.On("FindByID", ctx, id).Return(nil, storeErr)
	users.On("Delete", ctx, id).Return(storeErr)

	_, err = svc.List(ctx)
	errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)

	_, err = svc.Get(ctx, id)
	errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)

	err = svc.Delete(ctx, id)
	errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)
}
