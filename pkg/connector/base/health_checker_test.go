package base

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHealthCheckerTransitions(t *testing.T) {
	var failing atomic.Bool
	hc := NewHealthChecker("redis", time.Hour, time.Second, func(context.Context) error {
		if failing.Load() {
			return errors.New("connection refused")
		}
		return nil
	}, zaptest.NewLogger(t))

	status := hc.Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.True(t, hc.IsHealthy())

	failing.Store(true)
	assert.Equal(t, StatusDegraded, hc.Check(context.Background()).Status)
	assert.Equal(t, StatusDegraded, hc.Check(context.Background()).Status)
	status = hc.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, 3, status.Details["consecutive_failures"])
	assert.Equal(t, "connection refused", status.Details["last_error"])
	assert.False(t, hc.IsHealthy())

	failing.Store(false)
	status = hc.Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.NotContains(t, status.Details, "last_error")
	assert.Equal(t, int64(5), status.Details["check_count"])
	assert.Equal(t, int64(3), status.Details["failure_count"])
}

func TestHealthCheckerStatusIsCopy(t *testing.T) {
	hc := NewHealthChecker("redis", time.Hour, time.Second, func(context.Context) error { return nil }, nil)
	hc.Check(context.Background())

	status := hc.Status()
	status.Details["check_count"] = int64(99)
	assert.Equal(t, int64(1), hc.Status().Details["check_count"])
}

func TestHealthCheckerCheckTimeout(t *testing.T) {
	hc := NewHealthChecker("bigquery", time.Hour, 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	status := hc.Check(context.Background())
	assert.Equal(t, StatusDegraded, status.Status)
	assert.ErrorIs(t, status.Error, context.DeadlineExceeded)
}

func TestHealthCheckerStartStop(t *testing.T) {
	var calls atomic.Int64
	hc := NewHealthChecker("redis", 5*time.Millisecond, time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)

	hc.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	hc.Stop()
	hc.Stop()

	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}
