// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"net/http"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/accounts/internal/auth"
)

const tracerName = "github.com/holomush/accounts/internal/web"

// unmatchedRoute labels requests no route pattern matched.
const unmatchedRoute = "unmatched"

type userContextKey struct{}

// UserFromContext returns the authenticated user stored by the auth
// middleware, if any.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*auth.User)
	return user, ok
}

func withUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// requireUser rejects requests without a valid bearer token for an
// existing user.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, err := h.sessions.Authenticate(ctx, r.Header.Get("Authorization"))
		h.metrics.RecordAuthEvent(eventAuthenticate, err)
		if err != nil {
			writeError(ctx, w, h.logger, err)
			return
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", user.ID.String()))
		next.ServeHTTP(w, r.WithContext(withUser(ctx, user)))
	})
}

// requireAdmin is requireUser plus the admin role check.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return h.requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		if user == nil || !user.IsAdmin() {
			writeError(r.Context(), w, h.logger, oops.Code(auth.CodeForbidden).Errorf("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	//nolint:wrapcheck // ResponseWriter passthrough
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// instrument wraps next with a server span, request metrics, and one log
// line per request. Routes are labelled by their mux pattern.
func (h *Handler) instrument(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		req := r.WithContext(ctx)
		next.ServeHTTP(rec, req)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := req.Pattern
		if route == "" {
			route = unmatchedRoute
		} else {
			span.SetName(route)
		}
		elapsed := time.Since(start)

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		h.metrics.RecordRequest(route, status, elapsed)
		h.logger.InfoContext(ctx, "request",
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}
