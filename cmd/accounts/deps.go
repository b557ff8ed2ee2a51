// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/memory"
	"github.com/holomush/accounts/internal/auth/postgres"
	"github.com/holomush/accounts/internal/auth/sqlite"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/control"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/store"
)

// Directory is a user directory the CLI owns: it can be probed for
// readiness and must be closed.
type Directory interface {
	auth.UserDirectory
	Ping(ctx context.Context) error
	Close() error
}

// DirectoryOpener opens the user directory selected by cfg.
type DirectoryOpener func(ctx context.Context, cfg config.StoreConfig) (Directory, error)

// ControlServer wraps the methods used from control.GRPCServer.
type ControlServer interface {
	Start(addr string) (<-chan error, error)
	Addr() string
	WatchReadiness(ctx context.Context, check control.Checker, interval time.Duration)
	Stop(ctx context.Context) error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// openDirectory is the default DirectoryOpener.
func openDirectory(ctx context.Context, cfg config.StoreConfig) (Directory, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg.DSN, cfg.ConnectTimeout)
		if err != nil {
			return nil, oops.With("operation", "connect to database").Wrap(err)
		}
		return &postgresDirectory{UserDirectory: postgres.NewUserDirectory(pool), pool: pool}, nil
	case config.DriverSQLite:
		dir, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, oops.With("operation", "open sqlite store").Wrap(err)
		}
		return dir, nil
	case config.DriverMemory:
		return memoryDirectory{UserDirectory: memory.NewUserDirectory()}, nil
	default:
		return nil, oops.Code(config.CodeInvalid).
			With("driver", cfg.Driver).
			Errorf("unknown store driver %q", cfg.Driver)
	}
}

// postgresDirectory ties the directory to the pool it owns.
type postgresDirectory struct {
	*postgres.UserDirectory
	pool *pgxpool.Pool
}

func (d *postgresDirectory) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return oops.Code(auth.CodeStoreUnavailable).With("operation", "ping database").Wrap(err)
	}
	return nil
}

func (d *postgresDirectory) Close() error {
	d.pool.Close()
	return nil
}

// memoryDirectory is always ready and has nothing to release.
type memoryDirectory struct {
	*memory.UserDirectory
}

func (memoryDirectory) Ping(context.Context) error { return nil }

func (memoryDirectory) Close() error { return nil }
