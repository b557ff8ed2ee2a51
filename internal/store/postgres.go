// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides database plumbing: connection pools and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default connection retry parameters.
const (
	DefaultConnectTimeout = 30 * time.Second
	connectBackoffBase    = 250 * time.Millisecond
	connectBackoffCap     = 5 * time.Second
)

// pinger is the part of a pool Connect needs to check liveness.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pgx pool and pings it until the database answers or the
// timeout elapses. Failed pings are retried with capped exponential backoff.
func Connect(ctx context.Context, dsn string, timeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_DSN").
			With("operation", "parse database url").
			Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_UNAVAILABLE").
			With("operation", "create pool").
			Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, timeout); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitForDatabase pings p until it succeeds, ctx ends, or timeout elapses.
func waitForDatabase(ctx context.Context, p pinger, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	backoff := retry.NewExponential(connectBackoffBase)
	backoff = retry.WithCappedDuration(connectBackoffCap, backoff)
	backoff = retry.WithMaxDuration(timeout, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not ready, retrying",
				"attempt", attempt,
				"error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
