// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control serves the standard gRPC health protocol so operators and
// orchestrators can query whether the service is serving.
package control

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultCheckInterval is how often WatchReadiness re-runs its checker.
const DefaultCheckInterval = 5 * time.Second

// Checker reports nil while the service can take traffic.
type Checker func(ctx context.Context) error

// GRPCServer runs a gRPC health server for one component.
type GRPCServer struct {
	component  string
	health     *health.Server
	mu         sync.Mutex
	listener   net.Listener
	grpcServer *grpc.Server
}

// NewGRPCServer creates a control server reporting health for component.
// The component starts NOT_SERVING until SetServing(true) is called.
func NewGRPCServer(component string) (*GRPCServer, error) {
	if component == "" {
		return nil, oops.Code("CONTROL_INVALID_CONFIG").Errorf("component name cannot be empty")
	}
	s := &GRPCServer{
		component: component,
		health:    health.NewServer(),
	}
	s.SetServing(false)
	return s, nil
}

// Start begins listening on addr. The returned channel receives the serve
// error (nil on graceful stop) exactly once.
func (s *GRPCServer) Start(addr string) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil, oops.Code("CONTROL_ALREADY_RUNNING").Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.Code("CONTROL_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	srv := s.grpcServer
	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if err != nil {
			slog.Error("control gRPC server error",
				"component", s.component,
				"error", err,
			)
		}
		errCh <- err
	}()

	return errCh, nil
}

// Addr returns the bound address, or "" before Start.
func (s *GRPCServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetServing updates the reported status for both the component and the
// overall ("") service.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.component, status)
}

// WatchReadiness runs check every interval and mirrors the result into the
// health status until ctx ends.
func (s *GRPCServer) WatchReadiness(ctx context.Context, check Checker, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	update := func() {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := check(checkCtx)
		if err != nil {
			slog.WarnContext(ctx, "readiness check failed", "component", s.component, "error", err)
		}
		s.SetServing(err == nil)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// Stop marks the component NOT_SERVING and gracefully stops the server.
func (s *GRPCServer) Stop(_ context.Context) error {
	s.health.Shutdown()

	s.mu.Lock()
	srv := s.grpcServer
	s.mu.Unlock()
	if srv != nil {
		srv.GracefulStop()
	}
	return nil
}

// QueryStatus asks the control server at addr for the health of service
// ("" for the whole process) and returns the status name, e.g. "SERVING".
func QueryStatus(ctx context.Context, addr, service string) (string, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", oops.Code("CONTROL_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", oops.Code("CONTROL_QUERY_FAILED").
			With("addr", addr).
			With("service", service).
			Wrap(err)
	}
	return resp.GetStatus().String(), nil
}
