// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package control

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/pkg/errutil"
)

func startTestServer(t *testing.T) (*GRPCServer, <-chan error) {
	t.Helper()
	s, err := NewGRPCServer("accounts")
	require.NoError(t, err)
	errCh, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, errCh
}

func query(t *testing.T, s *GRPCServer, service string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := QueryStatus(ctx, s.Addr(), service)
	require.NoError(t, err)
	return status
}

func TestNewGRPCServer_EmptyComponent(t *testing.T) {
	_, err := NewGRPCServer("")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONTROL_INVALID_CONFIG")
}

func TestGRPCServer_StartsNotServing(t *testing.T) {
	s, _ := startTestServer(t)

	assert.Equal(t, "NOT_SERVING", query(t, s, ""))
	assert.Equal(t, "NOT_SERVING", query(t, s, "accounts"))
}

func TestGRPCServer_SetServing(t *testing.T) {
	s, _ := startTestServer(t)

	s.SetServing(true)
	assert.Equal(t, "SERVING", query(t, s, ""))
	assert.Equal(t, "SERVING", query(t, s, "accounts"))

	s.SetServing(false)
	assert.Equal(t, "NOT_SERVING", query(t, s, "accounts"))
}

func TestGRPCServer_UnknownService(t *testing.T) {
	s, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := QueryStatus(ctx, s.Addr(), "billing")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONTROL_QUERY_FAILED")
	errutil.AssertErrorContext(t, err, "service", "billing")
}

func TestGRPCServer_DoubleStartFails(t *testing.T) {
	s, _ := startTestServer(t)

	_, err := s.Start("127.0.0.1:0")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONTROL_ALREADY_RUNNING")
}

func TestGRPCServer_StartInvalidAddr(t *testing.T) {
	s, err := NewGRPCServer("accounts")
	require.NoError(t, err)

	_, err = s.Start("not-an-address")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONTROL_LISTEN_FAILED")
	assert.Empty(t, s.Addr())
}

func TestGRPCServer_StopClosesErrorChannel(t *testing.T) {
	s, err := NewGRPCServer("accounts")
	require.NoError(t, err)
	errCh, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for serve to return")
	}
}

func TestGRPCServer_StopWithoutStart(t *testing.T) {
	s, err := NewGRPCServer("accounts")
	require.NoError(t, err)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestGRPCServer_WatchReadiness(t *testing.T) {
	s, _ := startTestServer(t)

	var healthy atomic.Bool
	healthy.Store(true)
	check := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("database unreachable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.WatchReadiness(ctx, check, 10*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return query(t, s, "accounts") == "SERVING" },
		2*time.Second, 10*time.Millisecond)

	healthy.Store(false)
	assert.Eventually(t, func() bool { return query(t, s, "accounts") == "NOT_SERVING" },
		2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchReadiness did not return after cancel")
	}
}

func TestQueryStatus_NothingListening(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := QueryStatus(ctx, "127.0.0.1:1", "")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONTROL_QUERY_FAILED")
}
