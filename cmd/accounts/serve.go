// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/control"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/web"
	"github.com/holomush/accounts/pkg/errutil"
)

// codeServeFailed marks a shutdown caused by a server failing rather than
// by a signal or cancellation.
const codeServeFailed = "SERVE_FAILED"

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DirectoryOpener opens the configured user directory.
	// Default: openDirectory
	DirectoryOpener DirectoryOpener

	// ControlServerFactory creates the control gRPC server.
	// Default: control.NewGRPCServer
	ControlServerFactory func(component string) (ControlServer, error)

	// ObservabilityServerFactory creates the metrics and probe server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker) ObservabilityServer

	// OnReady is called with the bound API address once every server is up.
	OnReady func(apiAddr string)
}

// newServeCmd creates the serve subcommand.
func newServeCmd(opts *rootOptions, deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the accounts HTTP API",
		Long: `Run the accounts HTTP API together with the metrics/health server and
the control gRPC health server. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, deps)
		},
	}
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.DirectoryOpener == nil {
		deps.DirectoryOpener = openDirectory
	}
	if deps.ControlServerFactory == nil {
		deps.ControlServerFactory = func(component string) (ControlServer, error) {
			return control.NewGRPCServer(component)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, checker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, checker)
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate config").Wrap(err)
	}

	logger, err := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}
	logger.InfoContext(ctx, "starting accounts service", "config", cfg.String())

	dir, err := deps.DirectoryOpener(ctx, cfg.Store)
	if err != nil {
		return oops.With("operation", "open user directory").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer func() {
		if closeErr := dir.Close(); closeErr != nil {
			logger.Warn("error closing user directory", "error", closeErr)
		}
	}()
	logger.InfoContext(ctx, "user directory ready", "driver", cfg.Store.Driver)

	hasher, err := auth.NewHasher(cfg.Hasher.Auth())
	if err != nil {
		return oops.With("operation", "create password hasher").Wrap(err)
	}
	codec, err := auth.NewTokenCodec([]byte(cfg.Token.Secret))
	if err != nil {
		return oops.With("operation", "create token codec").Wrap(err)
	}
	sessions, err := auth.NewSessionServiceWithLogger(dir, hasher, codec, cfg.Token.TTL, logger)
	if err != nil {
		return oops.With("operation", "create session service").Wrap(err)
	}
	accounts, err := auth.NewAccountServiceWithLogger(dir, hasher, logger)
	if err != nil {
		return oops.With("operation", "create account service").Wrap(err)
	}

	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var stoppers []func(context.Context) error
	shutdown := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		for i := len(stoppers) - 1; i >= 0; i-- {
			if stopErr := stoppers[i](shutdownCtx); stopErr != nil {
				logger.Warn("error stopping server", "error", stopErr)
			}
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, dir.Ping)
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.With("operation", "start observability server").Wrap(startErr)
		}
		stoppers = append(stoppers, obsServer.Stop)
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
		logger.InfoContext(ctx, "observability server started", "addr", obsServer.Addr())
	}

	if cfg.Control.Addr != "" {
		controlServer, createErr := deps.ControlServerFactory(serviceName)
		if createErr != nil {
			shutdown()
			return oops.With("operation", "create control server").Wrap(createErr)
		}
		controlErrCh, startErr := controlServer.Start(cfg.Control.Addr)
		if startErr != nil {
			shutdown()
			return oops.With("operation", "start control server").Wrap(startErr)
		}
		stoppers = append(stoppers, controlServer.Stop)
		go monitorServerErrors(ctx, cancel, controlErrCh, "control")
		go controlServer.WatchReadiness(ctx, control.Checker(dir.Ping), control.DefaultCheckInterval)
		logger.InfoContext(ctx, "control server started", "addr", controlServer.Addr())
	}

	handler, err := web.NewHandler(web.Config{
		Sessions: sessions,
		Accounts: accounts,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		shutdown()
		return oops.With("operation", "create api handler").Wrap(err)
	}
	apiServer := web.NewServer(cfg.Server.Addr, handler.Routes(), cfg.Server.ReadTimeout)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		shutdown()
		return oops.With("operation", "start api server").Wrap(err)
	}
	stoppers = append(stoppers, apiServer.Stop)
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	cmd.Println("Accounts service started on " + apiServer.Addr())
	logger.InfoContext(ctx, "accounts service ready", "addr", apiServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr())
	}

	<-ctx.Done()
	logger.Info("shutting down", "cause", context.Cause(ctx).Error())
	shutdown()
	logger.Info("shutdown complete")

	if cause := context.Cause(ctx); errutil.Code(cause) == codeServeFailed {
		return cause
	}
	return nil
}

// monitorServerErrors cancels ctx with a SERVE_FAILED cause when a server
// reports a failure.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return
		}
		slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
		cancel(oops.Code(codeServeFailed).With("server", serverName).Wrap(err))
	case <-ctx.Done():
	}
}
