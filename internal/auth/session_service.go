// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
)

// DefaultTokenTTL is the lifetime of issued bearer tokens.
const DefaultTokenTTL = 1000 * time.Second

// dummyPasswordHash is verified when the email is unknown so that both
// outcomes cost one hash computation.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Credentials is an email and plaintext password pair.
type Credentials struct {
	Email    string
	Password string
}

// SessionService handles login, bearer authentication, and token refresh.
// Sessions are stateless: nothing is stored server-side and a refreshed
// token does not invalidate its predecessor.
type SessionService struct {
	users  UserDirectory
	hasher PasswordHasher
	tokens *TokenCodec
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(users UserDirectory, hasher PasswordHasher, tokens *TokenCodec, ttl time.Duration) (*SessionService, error) {
	return NewSessionServiceWithLogger(users, hasher, tokens, ttl, slog.Default())
}

// NewSessionServiceWithLogger creates a new SessionService with an explicit logger.
func NewSessionServiceWithLogger(users UserDirectory, hasher PasswordHasher, tokens *TokenCodec, ttl time.Duration, logger *slog.Logger) (*SessionService, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user directory is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token codec is required")
	}
	if ttl < MinTokenTTL {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("ttl", ttl.String()).
			Errorf("token ttl must be at least %s", MinTokenTTL)
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	return &SessionService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// TTL returns the lifetime given to issued tokens.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Login verifies credentials and issues a token for the matching user.
func (s *SessionService) Login(ctx context.Context, creds Credentials) (*User, *IssuedToken, error) {
	if creds.Email == "" {
		return nil, nil, oops.Code(CodeMissingCredentials).Errorf("email is required")
	}

	user, err := s.users.FindByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Still verify against a dummy hash to keep response time uniform.
			_, _ = s.hasher.Verify(creds.Password, dummyPasswordHash) //nolint:errcheck // timing only
			return nil, nil, oops.Code(CodeUserNotFound).
				With("email", creds.Email).
				Errorf("no user with that email")
		}
		return nil, nil, oops.With("operation", "find user by email").Wrap(err)
	}

	valid, err := s.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		return nil, nil, oops.With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !valid {
		return nil, nil, oops.Code(CodeInvalidCredentials).
			With("user_id", user.ID.String()).
			Errorf("invalid email or password")
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, creds.Password)
	}

	issued, err := s.tokens.Issue(user.ID, s.ttl)
	if err != nil {
		return nil, nil, oops.With("operation", "issue token").Wrap(err)
	}
	return user, issued, nil
}

// upgradeHash rehashes the password with the current parameters. Failures
// are logged and never fail the login.
func (s *SessionService) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password rehash failed",
			"operation", "rehash_password",
			"user_id", user.ID.String(),
			"error", err.Error())
		return
	}
	user.PasswordHash = hash
}

// Authenticate resolves the user named by a bearer Authorization header.
func (s *SessionService) Authenticate(ctx context.Context, authorization string) (*User, error) {
	token, err := BearerToken(authorization)
	if err != nil {
		return nil, err
	}
	user, _, err := s.authenticateToken(ctx, token)
	return user, err
}

// AuthenticateToken resolves the user named by an already extracted token.
func (s *SessionService) AuthenticateToken(ctx context.Context, token string) (*User, error) {
	user, _, err := s.authenticateToken(ctx, token)
	return user, err
}

func (s *SessionService) authenticateToken(ctx context.Context, token string) (*User, *TokenPayload, error) {
	payload, err := s.tokens.Decode(token)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code(CodeUserNotFound).
				With("user_id", payload.UserID.String()).
				Errorf("token subject no longer exists")
		}
		return nil, nil, oops.With("operation", "find user by id").Wrap(err)
	}
	return user, payload, nil
}

// Refresh authenticates the bearer token and issues a new one for the same
// user. The new expiration is strictly later than the presented token's.
func (s *SessionService) Refresh(ctx context.Context, authorization string) (*IssuedToken, error) {
	token, err := BearerToken(authorization)
	if err != nil {
		return nil, err
	}

	user, payload, err := s.authenticateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	exp := s.tokens.Now().Add(s.ttl).Truncate(time.Second)
	if !exp.After(payload.ExpiresAt) {
		exp = payload.ExpiresAt.Add(time.Second)
	}

	issued, err := s.tokens.IssueUntil(user.ID, exp)
	if err != nil {
		return nil, oops.With("operation", "issue token").Wrap(err)
	}
	return issued, nil
}

// BearerToken extracts the token from an Authorization header value.
// The scheme match is case-insensitive.
func BearerToken(authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", oops.Code(CodeMissingCredentials).Errorf("authorization header is missing")
	}

	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", oops.Code(CodeMissingCredentials).Errorf("authorization scheme must be Bearer")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", oops.Code(CodeMissingCredentials).Errorf("bearer token is empty")
	}
	return token, nil
}
