// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/pkg/errutil"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedFile is the YAML document read by accounts seed.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
}

// seedResult counts what a seed run did.
type seedResult struct {
	Created int
	Skipped int
}

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// SeedDeps contains injectable dependencies for the seed command.
type SeedDeps struct {
	// DirectoryOpener opens the configured user directory.
	// Default: openDirectory
	DirectoryOpener DirectoryOpener
}

// newSeedCmd creates the seed subcommand.
func newSeedCmd(opts *rootOptions, deps *SeedDeps) *cobra.Command {
	cfg := &seedConfig{}
	if deps == nil {
		deps = &SeedDeps{}
	}
	if deps.DirectoryOpener == nil {
		deps.DirectoryOpener = openDirectory
	}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create users from a YAML file",
		Long: `Create users, typically the first administrators, from a YAML file:

  users:
    - email: admin@example.com
      password: change-me
      name: Admin
      role: admin

This command is idempotent: users whose email already exists are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSeed(cmd, appCfg, cfg, deps)
		},
	}

	cmd.Flags().StringVar(&cfg.file, "file", "", "YAML file listing users to create (required)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for store operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, appCfg *config.Config, cfg *seedConfig, deps *SeedDeps) error {
	if cfg.file == "" {
		return oops.Code(config.CodeInvalid).Errorf("--file is required")
	}
	if err := errors.Join(appCfg.Store.Validate(), appCfg.Hasher.Validate()); err != nil {
		return oops.Code(config.CodeInvalid).Wrap(err)
	}

	users, err := readSeedFile(cfg.file)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals.
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, cfg.timeout)
	defer cancel()

	hasher, err := auth.NewHasher(appCfg.Hasher.Auth())
	if err != nil {
		return oops.With("operation", "create password hasher").Wrap(err)
	}

	dir, err := deps.DirectoryOpener(ctx, appCfg.Store)
	if err != nil {
		return oops.With("operation", "open user directory").Wrap(err)
	}
	defer func() { _ = dir.Close() }()

	accounts, err := auth.NewAccountService(dir, hasher)
	if err != nil {
		return oops.With("operation", "create account service").Wrap(err)
	}

	result, err := seedUsers(ctx, accounts, users)
	if err != nil {
		return err
	}
	cmd.Printf("Seed complete: %d created, %d skipped\n", result.Created, result.Skipped)
	return nil
}

// readSeedFile parses path. Unknown keys are rejected so typos do not
// silently drop fields.
func readSeedFile(path string) ([]seedUser, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	var doc seedFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, oops.Code("SEED_INVALID").With("path", path).Wrap(err)
	}
	return doc.Users, nil
}

// seedUsers creates each user, skipping emails that already exist.
func seedUsers(ctx context.Context, accounts *auth.AccountService, users []seedUser) (seedResult, error) {
	var result seedResult
	for i, u := range users {
		_, err := accounts.Create(ctx, auth.CreateUserInput{
			Email:    u.Email,
			Password: u.Password,
			Name:     u.Name,
			Role:     auth.Role(u.Role),
		})
		switch {
		case err == nil:
			result.Created++
		case errutil.Code(err) == auth.CodeDuplicateEmail:
			result.Skipped++
		default:
			return result, oops.With("operation", "seed user").
				With("index", i).
				With("email", u.Email).
				Wrap(err)
		}
	}
	return result, nil
}
