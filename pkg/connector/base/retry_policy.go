package base

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Jitter returns a random duration in [0, max).
type Jitter func(max time.Duration) time.Duration

// RetryPolicy retries an operation after a random delay in [0, MaxDelay)
// for as long as a condition holds, up to MaxAttempts calls in total.
type RetryPolicy struct {
	MaxAttempts int
	MaxDelay    time.Duration

	// Sleep and Jitter default to a timer based sleep and math/rand.
	Sleep  Sleeper
	Jitter Jitter

	// OnRetry is called before sleeping ahead of attempt number next.
	OnRetry func(next int, err error, delay time.Duration)
	// OnInterrupt is called when a sleep ends early. The policy carries on
	// with the next attempt.
	OnInterrupt func(err error)
}

// NewRetryPolicy creates a policy with random delays below maxDelay.
func NewRetryPolicy(maxAttempts int, maxDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		MaxDelay:    maxDelay,
	}
}

// Execute runs fn, retrying any error.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) (int, error) {
	return rp.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition runs fn until it succeeds, returns an error for which
// shouldRetry is false, or MaxAttempts calls have been made. It returns the
// number of calls and the last error.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) (int, error) {
	maxAttempts := rp.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == maxAttempts {
			return attempt, err
		}

		delay := rp.jitter(rp.MaxDelay)
		if rp.OnRetry != nil {
			rp.OnRetry(attempt+1, err, delay)
		}
		if sleepErr := rp.sleep(ctx, delay); sleepErr != nil && rp.OnInterrupt != nil {
			rp.OnInterrupt(sleepErr)
		}
	}

	return maxAttempts, lastErr
}

func (rp *RetryPolicy) jitter(max time.Duration) time.Duration {
	if rp.Jitter != nil {
		return rp.Jitter(max)
	}
	return RandomJitter(max)
}

func (rp *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if rp.Sleep != nil {
		return rp.Sleep(ctx, d)
	}
	return TimerSleep(ctx, d)
}

// TimerSleep waits for d with context cancellation.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // jitter does not need a CSPRNG
)

// RandomJitter returns a uniformly random duration in [0, max).
func RandomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	rngMu.Lock()
	defer rngMu.Unlock()
	return time.Duration(rng.Int63n(int64(max)))
}

// NoRetryPolicy returns a policy that doesn't retry
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 1,
	}
}
