// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token constraints.
const (
	MinSecretLength = 32
	MinTokenTTL     = time.Second
)

// TokenPayload is the decoded content of a bearer token.
type TokenPayload struct {
	UserID    ulid.ULID
	ExpiresAt time.Time
}

// IssuedToken is a freshly signed bearer token and its absolute expiration.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// tokenClaims is the signed payload. Only userId and exp are written.
type tokenClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenCodec issues and decodes HS256-signed bearer tokens.
// It is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock replaces the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec creates a TokenCodec signing with secret.
func NewTokenCodec(secret []byte, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_INVALID_CONFIG").
			With("min", MinSecretLength).
			Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}

	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Now returns the codec's current time.
func (c *TokenCodec) Now() time.Time {
	return c.now()
}

// Issue signs a token for userID expiring ttl from now. The expiration is
// truncated to whole seconds, the precision of the encoded claim.
func (c *TokenCodec) Issue(userID ulid.ULID, ttl time.Duration) (*IssuedToken, error) {
	return c.IssueUntil(userID, c.now().Add(ttl))
}

// IssueUntil signs a token for userID expiring at exp.
func (c *TokenCodec) IssueUntil(userID ulid.ULID, exp time.Time) (*IssuedToken, error) {
	exp = exp.Truncate(time.Second)
	if !exp.After(c.now()) {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("expires_at", exp).
			Errorf("token expiration must be in the future")
	}

	claims := tokenClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return &IssuedToken{Token: signed, ExpiresAt: exp}, nil
}

// Decode verifies the token and returns its payload. A token is valid only
// while now is strictly before its expiration.
func (c *TokenCodec) Decode(token string) (*TokenPayload, error) {
	var claims tokenClaims
	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}

	userID, err := ulid.ParseStrict(claims.UserID)
	if err != nil {
		return nil, oops.Code(CodeMalformedToken).
			With("user_id", claims.UserID).
			Wrap(err)
	}

	return &TokenPayload{
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return oops.Code(CodeBadSignature).Wrap(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code(CodeTokenExpired).Wrap(err)
	default:
		// Malformed segments, bad JSON, and a missing exp claim.
		return oops.Code(CodeMalformedToken).Wrap(err)
	}
}
