// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"duplicate email", oops.Code(auth.CodeDuplicateEmail).Wrap(auth.ErrDuplicateEmail), http.StatusConflict, auth.CodeDuplicateEmail},
		{"duplicate id", oops.Code(auth.CodeDuplicateID).Errorf("taken"), http.StatusConflict, auth.CodeDuplicateID},
		{"not found", oops.Code(auth.CodeUserNotFound).Wrap(auth.ErrNotFound), http.StatusNotFound, auth.CodeUserNotFound},
		{"bad password", oops.Code(auth.CodeInvalidCredentials).Errorf("no"), http.StatusUnauthorized, auth.CodeInvalidCredentials},
		{"expired", oops.Code(auth.CodeTokenExpired).Errorf("late"), http.StatusUnauthorized, auth.CodeTokenExpired},
		{"forbidden", oops.Code(auth.CodeForbidden).Errorf("no"), http.StatusForbidden, auth.CodeForbidden},
		{"invalid input", oops.Code(auth.CodeInvalidInput).Errorf("bad"), http.StatusBadRequest, auth.CodeInvalidInput},
		{"invalid request", oops.Code(CodeInvalidRequest).Errorf("bad"), http.StatusBadRequest, CodeInvalidRequest},
		{"store", oops.Code(auth.CodeStoreUnavailable).Errorf("down"), http.StatusServiceUnavailable, auth.CodeStoreUnavailable},
		{"hashing", oops.Code(auth.CodeHashingFailed).Errorf("rng"), http.StatusInternalServerError, auth.CodeHashingFailed},
		{"wrapped keeps inner code", oops.With("operation", "x").Wrap(oops.Code(auth.CodeUserNotFound).Errorf("gone")), http.StatusNotFound, auth.CodeUserNotFound},
		{"unknown code", oops.Code("SOMETHING_ELSE").Errorf("?"), http.StatusInternalServerError, codeInternal},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestWriteError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	t.Run("caller fault keeps message and is not logged", func(t *testing.T) {
		logs.Reset()
		rec := httptest.NewRecorder()
		writeError(context.Background(), rec, logger, oops.Code(auth.CodeInvalidInput).Errorf("name cannot be empty"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, errorResponse{Error: auth.CodeInvalidInput, Message: "name cannot be empty"}, body)
		assert.Empty(t, logs.String())
	})

	t.Run("server fault hides detail and is logged", func(t *testing.T) {
		logs.Reset()
		rec := httptest.NewRecorder()
		writeError(context.Background(), rec, logger, errors.New("pq: relation users does not exist"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, errorResponse{Error: codeInternal, Message: "internal error"}, body)
		assert.Contains(t, logs.String(), "relation users does not exist")
	})
}
