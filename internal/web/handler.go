// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the account and session services over HTTP.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/observability"
)

// Auth event names recorded in metrics.
const (
	eventLogin        = "login"
	eventRegister     = "register"
	eventRefresh      = "refresh"
	eventAuthenticate = "authenticate"
)

// Sessions is the part of auth.SessionService the handlers use.
type Sessions interface {
	Login(ctx context.Context, creds auth.Credentials) (*auth.User, *auth.IssuedToken, error)
	Authenticate(ctx context.Context, authorization string) (*auth.User, error)
	Refresh(ctx context.Context, authorization string) (*auth.IssuedToken, error)
}

// Accounts is the part of auth.AccountService the handlers use.
type Accounts interface {
	Register(ctx context.Context, reg auth.Registration) (*auth.User, error)
	Create(ctx context.Context, in auth.CreateUserInput) (*auth.User, error)
	List(ctx context.Context) ([]*auth.User, error)
	Get(ctx context.Context, id ulid.ULID) (*auth.User, error)
	Delete(ctx context.Context, id ulid.ULID) error
}

// Config holds the Handler's collaborators. Metrics may be nil; a nil
// Logger means slog.Default().
type Config struct {
	Sessions Sessions
	Accounts Accounts
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Handler serves the /users API.
type Handler struct {
	sessions Sessions
	accounts Accounts
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	User            auth.PublicUser `json:"user"`
	Token           string          `json:"token"`
	TokenExpiration time.Time       `json:"tokenExpiration"`
}

// TokenResponse is the body of a successful refresh.
type TokenResponse struct {
	Token           string    `json:"token"`
	TokenExpiration time.Time `json:"tokenExpiration"`
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Sessions == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("session service is required")
	}
	if cfg.Accounts == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("account service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: cfg.Sessions,
		accounts: cfg.Accounts,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// Routes returns the API mux wrapped in tracing, metrics, and request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /users", h.requireAdmin(http.HandlerFunc(h.createUser)))
	mux.HandleFunc("POST /users/register", h.register)
	mux.HandleFunc("POST /users/login", h.login)
	mux.HandleFunc("GET /users/refresh", h.refresh)
	mux.Handle("GET /users", h.requireUser(http.HandlerFunc(h.listUsers)))
	mux.Handle("GET /users/{id}", h.requireUser(http.HandlerFunc(h.getUser)))
	mux.Handle("DELETE /users/{id}", h.requireAdmin(http.HandlerFunc(h.deleteUser)))
	mux.HandleFunc("GET /healthz", h.healthz)

	return h.instrument(mux)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterRequest
	if err := decodeBody(r, w, "register", &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	_, err := h.accounts.Register(ctx, auth.Registration{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	h.metrics.RecordAuthEvent(eventRegister, err)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := decodeBody(r, w, "login", &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	user, token, err := h.sessions.Login(ctx, auth.Credentials{Email: req.Email, Password: req.Password})
	h.metrics.RecordAuthEvent(eventLogin, err)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	writeJSON(ctx, w, h.logger, http.StatusOK, LoginResponse{
		User:            user.Public(),
		Token:           token.Token,
		TokenExpiration: token.ExpiresAt.UTC(),
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := h.sessions.Refresh(ctx, r.Header.Get("Authorization"))
	h.metrics.RecordAuthEvent(eventRefresh, err)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	writeJSON(ctx, w, h.logger, http.StatusOK, TokenResponse{
		Token:           token.Token,
		TokenExpiration: token.ExpiresAt.UTC(),
	})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := decodeBody(r, w, "create-user", &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	in := auth.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     auth.Role(req.Role),
	}
	if req.ID != "" {
		id, err := ulid.ParseStrict(req.ID)
		if err != nil {
			writeError(ctx, w, h.logger, oops.Code(auth.CodeInvalidInput).With("id", req.ID).Errorf("id is not a valid ULID"))
			return
		}
		in.ID = &id
	}

	user, err := h.accounts.Create(ctx, in)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(ctx, w, h.logger, http.StatusCreated, user.Public())
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.accounts.List(ctx)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	out := make([]auth.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	writeJSON(ctx, w, h.logger, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	user, err := h.accounts.Get(ctx, id)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(ctx, w, h.logger, http.StatusOK, user.Public())
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	if err := h.accounts.Delete(ctx, id); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	w.Write([]byte("ok\n"))
}

// pathID parses the {id} path segment. A malformed ID cannot name any
// user, so it is reported as not found.
func pathID(r *http.Request) (ulid.ULID, error) {
	raw := r.PathValue("id")
	id, err := ulid.ParseStrict(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code(auth.CodeUserNotFound).
			With("id", raw).
			Wrap(auth.ErrNotFound)
	}
	return id, nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnContext(ctx, "failed to write response body", "status", status, "error", err)
	}
}
