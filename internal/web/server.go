// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Server runs the API handler on its own listener.
type Server struct {
	addr        string
	handler     http.Handler
	readTimeout time.Duration

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a Server for handler on addr.
func NewServer(addr string, handler http.Handler, readTimeout time.Duration) *Server {
	return &Server{addr: addr, handler: handler, readTimeout: readTimeout}
}

// Start begins serving. The returned channel receives a serve failure and is
// closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.readTimeout,
		ReadTimeout:       s.readTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	httpSrv := s.httpServer
	s.mu.Unlock()

	if httpSrv == nil {
		return nil
	}
	if err := httpSrv.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown_api_server").Wrap(err)
	}
	slog.Info("api server stopped")
	return nil
}
