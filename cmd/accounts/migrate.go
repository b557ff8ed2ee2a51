// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// newMigrateCmd creates the migrate subcommand and its children.
func newMigrateCmd(opts *rootOptions, deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply, roll back, or inspect the users schema in PostgreSQL.
The database URL comes from --dsn, store.dsn in the config file, or DATABASE_URL.`,
	}

	var jsonOutput bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, deps, func(m Migrator) error {
				return printMigrationStatus(cmd, m, jsonOutput)
			})
		},
	}
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, opts, deps, func(m Migrator) error {
					cmd.Println("Running migrations...")
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration (drops the users table)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, opts, deps, func(m Migrator) error {
					cmd.Println("Rolling back migrations...")
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("Rollback completed successfully")
					return nil
				})
			},
		},
		statusCmd,
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Record VERSION as applied without running migrations",
			Long: `Record VERSION as the current schema version without running any SQL.
Use this to clear the dirty flag after repairing a failed migration by hand.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				return withMigrator(cmd, opts, deps, func(m Migrator) error {
					if err := m.Force(version); err != nil {
						return err
					}
					cmd.Printf("Forced schema version to %d\n", version)
					return nil
				})
			},
		},
	)
	return cmd
}

// withMigrator loads the database URL, opens a migrator, and runs fn.
func withMigrator(cmd *cobra.Command, opts *rootOptions, deps *MigrateDeps, fn func(Migrator) error) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	databaseURL, err := migrationURL(cfg.Store)
	if err != nil {
		return err
	}

	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()

	return fn(m)
}

// migrationURL returns the database URL migrations run against.
func migrationURL(s config.StoreConfig) (string, error) {
	if s.Driver != config.DriverPostgres {
		return "", oops.Code(config.CodeInvalid).
			With("driver", s.Driver).
			Errorf("migrations apply to the postgres store only; the %s store needs none", s.Driver)
	}
	if s.DSN == "" {
		return "", oops.Code(config.CodeInvalid).
			Errorf("a database URL is required: set --dsn, store.dsn, or %s", config.EnvDatabaseURL)
	}
	return s.DSN, nil
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").
			With("input", arg).
			Errorf("version must be an integer, got %q", arg)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").
			With("input", arg).
			Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}

func printMigrationStatus(cmd *cobra.Command, m Migrator, jsonOutput bool) error {
	status, err := m.Status()
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return oops.With("operation", "marshal migration status").Wrap(err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	name := status.Name
	if name == "" {
		name = "none"
	}
	cmd.Printf("Current version: %d (%s)\n", status.Version, name)
	if status.Dirty {
		cmd.Println("State: DIRTY (repair the schema, then run: accounts migrate force VERSION)")
	}
	cmd.Printf("Applied: %s\n", formatVersions(status.Applied))
	cmd.Printf("Pending: %s\n", formatVersions(status.Pending))
	return nil
}

func formatVersions(versions []uint) string {
	if len(versions) == 0 {
		return "none"
	}
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
