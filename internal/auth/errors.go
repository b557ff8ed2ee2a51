// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Error codes carried by oops errors returned from this package.
// HTTP handlers map these to status codes; see internal/web.
const (
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeDuplicateID        = "AUTH_DUPLICATE_ID"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeMissingCredentials = "AUTH_MISSING_CREDENTIALS"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeHashingFailed      = "AUTH_HASHING_FAILED"
	CodeMalformedToken     = "TOKEN_MALFORMED"
	CodeBadSignature       = "TOKEN_BAD_SIGNATURE"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when a user with the same email already exists.
var ErrDuplicateEmail = errors.New("duplicate email")
