// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

// codeInternal is reported for errors that carry no mapped code.
const codeInternal = "INTERNAL"

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusByCode maps error codes to HTTP statuses. Unlisted codes are 500.
var statusByCode = map[string]int{
	auth.CodeDuplicateEmail:     http.StatusConflict,
	auth.CodeDuplicateID:        http.StatusConflict,
	auth.CodeUserNotFound:       http.StatusNotFound,
	auth.CodeInvalidCredentials: http.StatusUnauthorized,
	auth.CodeMissingCredentials: http.StatusUnauthorized,
	auth.CodeMalformedToken:     http.StatusUnauthorized,
	auth.CodeBadSignature:       http.StatusUnauthorized,
	auth.CodeTokenExpired:       http.StatusUnauthorized,
	auth.CodeForbidden:          http.StatusForbidden,
	auth.CodeInvalidInput:       http.StatusBadRequest,
	CodeInvalidRequest:          http.StatusBadRequest,
	auth.CodeHashingFailed:      http.StatusInternalServerError,
	auth.CodeStoreUnavailable:   http.StatusServiceUnavailable,
}

// fixedMessages replaces error text that could leak internals.
var fixedMessages = map[string]string{
	auth.CodeDuplicateEmail:     "a user with this email already exists",
	auth.CodeDuplicateID:        "a user with this id already exists",
	auth.CodeUserNotFound:       "user not found",
	auth.CodeInvalidCredentials: "invalid credentials",
	auth.CodeMissingCredentials: "missing bearer token",
	auth.CodeMalformedToken:     "malformed token",
	auth.CodeBadSignature:       "invalid token signature",
	auth.CodeTokenExpired:       "token expired",
	auth.CodeForbidden:          "admin role required",
	auth.CodeHashingFailed:      "internal error",
	auth.CodeStoreUnavailable:   "service unavailable",
	codeInternal:                "internal error",
}

// StatusFor returns the HTTP status and wire code for err.
func StatusFor(err error) (int, string) {
	code := errutil.Code(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, codeInternal
}

// writeError renders err as the JSON error envelope. Server-side failures are
// logged; caller faults are not.
func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := StatusFor(err)

	message, ok := fixedMessages[code]
	if !ok {
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(ctx, logger, "request failed", err)
	}

	writeJSON(ctx, w, logger, status, errorResponse{Error: code, Message: message})
}
