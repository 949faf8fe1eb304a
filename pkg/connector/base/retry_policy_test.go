package base

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRateLimited = errors.New("Exceeded rate limits: too many table update operations")

func instantPolicy(maxAttempts int, slept *[]time.Duration) *RetryPolicy {
	rp := NewRetryPolicy(maxAttempts, 10*time.Second)
	rp.Jitter = func(max time.Duration) time.Duration { return max / 2 }
	rp.Sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return rp
}

func TestRetryUntilSuccess(t *testing.T) {
	var slept []time.Duration
	rp := instantPolicy(10, &slept)

	calls := 0
	attempts, err := rp.Execute(context.Background(), func() error {
		calls++
		if calls <= 3 {
			return errRateLimited
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, slept)
}

func TestRetryBudgetExhausted(t *testing.T) {
	var slept []time.Duration
	rp := instantPolicy(10, &slept)

	attempts, err := rp.Execute(context.Background(), func() error { return errRateLimited })
	assert.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, 10, attempts)
	assert.Len(t, slept, 9)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	var slept []time.Duration
	rp := instantPolicy(10, &slept)
	permanent := errors.New("access denied")

	attempts, err := rp.ExecuteWithCondition(context.Background(), func() error { return permanent },
		func(err error) bool { return errors.Is(err, errRateLimited) })
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, slept)
}

func TestRetryInterruptedSleepContinues(t *testing.T) {
	rp := NewRetryPolicy(3, time.Hour)
	var interrupts []error
	rp.OnInterrupt = func(err error) { interrupts = append(interrupts, err) }
	var retries []int
	rp.OnRetry = func(next int, _ error, _ time.Duration) { retries = append(retries, next) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := rp.Execute(ctx, func() error { return errRateLimited })
	assert.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, 3, attempts)
	assert.Len(t, interrupts, 2)
	assert.ErrorIs(t, interrupts[0], context.Canceled)
	assert.Equal(t, []int{2, 3}, retries)
}

func TestRandomJitterBounds(t *testing.T) {
	assert.Equal(t, time.Duration(0), RandomJitter(0))
	for i := 0; i < 100; i++ {
		d := RandomJitter(10 * time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 10*time.Millisecond)
	}
}

func TestNoRetryPolicy(t *testing.T) {
	attempts, err := NoRetryPolicy().Execute(context.Background(), func() error { return errRateLimited })
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestTimerSleep(t *testing.T) {
	require.NoError(t, TimerSleep(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, TimerSleep(ctx, time.Hour), context.Canceled)
}
