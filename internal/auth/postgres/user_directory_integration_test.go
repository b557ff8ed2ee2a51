// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/postgres"
	"github.com/holomush/accounts/internal/store"
)

func errorCode(err error) any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Code()
}

var _ = Describe("UserDirectory", func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		pool      *pgxpool.Pool
		dir       *postgres.UserDirectory
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("accounts_test"),
			tcpostgres.WithUsername("accounts"),
			tcpostgres.WithPassword("accounts"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.Connect(ctx, connStr, 10*time.Second)
		Expect(err).NotTo(HaveOccurred())
		dir = postgres.NewUserDirectory(pool)
	})

	AfterEach(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	newUser := func(email string) *auth.User {
		user, err := auth.NewUser(email, "Test User", "$argon2id$stub", auth.RoleUser)
		Expect(err).NotTo(HaveOccurred())
		return user
	}

	It("round-trips a user", func() {
		user := newUser("alice@example.com")
		Expect(dir.Create(ctx, user)).To(Succeed())

		byEmail, err := dir.FindByEmail(ctx, "alice@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(user.ID))
		Expect(byEmail.CreatedAt.Equal(user.CreatedAt)).To(BeTrue())

		byID, err := dir.FindByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Email).To(Equal("alice@example.com"))
	})

	It("rejects a second user with the same email", func() {
		Expect(dir.Create(ctx, newUser("dup@example.com"))).To(Succeed())

		err := dir.Create(ctx, newUser("dup@example.com"))
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
		Expect(errorCode(err)).To(Equal(auth.CodeDuplicateEmail))
	})

	It("treats email lookup as case-sensitive", func() {
		Expect(dir.Create(ctx, newUser("Case@example.com"))).To(Succeed())

		_, err := dir.FindByEmail(ctx, "case@example.com")
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("lists users in creation order and deletes them", func() {
		first := newUser("first@example.com")
		Expect(dir.Create(ctx, first)).To(Succeed())
		second := newUser("second@example.com")
		Expect(dir.Create(ctx, second)).To(Succeed())

		users, err := dir.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(2))
		Expect(users[0].ID).To(Equal(first.ID))

		Expect(dir.Delete(ctx, first.ID)).To(Succeed())
		err = dir.Delete(ctx, first.ID)
		Expect(errorCode(err)).To(Equal(auth.CodeUserNotFound))

		users, err = dir.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(1))
	})

	It("updates the stored hash", func() {
		user := newUser("rehash@example.com")
		Expect(dir.Create(ctx, user)).To(Succeed())
		Expect(dir.UpdatePasswordHash(ctx, user.ID, "$argon2id$new")).To(Succeed())

		got, err := dir.FindByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("$argon2id$new"))

		err = dir.UpdatePasswordHash(ctx, ulid.Make(), "$argon2id$new")
		Expect(errorCode(err)).To(Equal(auth.CodeUserNotFound))
	})
})
