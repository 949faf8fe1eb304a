package base

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/connector/core"
)

// Health states reported by HealthChecker.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// unhealthyAfter is the number of consecutive failures after which a
// degraded destination is reported unhealthy.
const unhealthyAfter = 3

// HealthChecker periodically probes a destination backend.
type HealthChecker struct {
	name             string
	interval         time.Duration
	timeout          time.Duration
	check            func(ctx context.Context) error
	logger           *zap.Logger
	statusMutex      sync.RWMutex
	status           core.HealthStatus
	consecutiveFails int
	checkCount       int64
	failureCount     int64
	stopOnce         sync.Once
	stopCh           chan struct{}
	wg               sync.WaitGroup
}

// NewHealthChecker creates a checker that calls check every interval, each
// call bounded by timeout. The status is healthy until the first check.
func NewHealthChecker(name string, interval, timeout time.Duration, check func(ctx context.Context) error, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HealthChecker{
		name:     name,
		interval: interval,
		timeout:  timeout,
		check:    check,
		logger:   logger.With(zap.String("component", "health_checker"), zap.String("destination", name)),
		status: core.HealthStatus{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
			Details:   make(map[string]interface{}),
		},
		stopCh: make(chan struct{}),
	}
}

// Start runs one check immediately and then one per interval until ctx is
// done or Stop is called.
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.wg.Add(1)
	go func() {
		defer hc.wg.Done()
		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()

		hc.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hc.stopCh:
				return
			case <-ticker.C:
				hc.Check(ctx)
			}
		}
	}()
}

// Stop stops the periodic checks and waits for a running check to finish.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
	hc.wg.Wait()
}

// Check runs a single probe and updates the status.
func (hc *HealthChecker) Check(ctx context.Context) core.HealthStatus {
	checkCount := atomic.AddInt64(&hc.checkCount, 1)

	checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()
	err := hc.check(checkCtx)

	var failureCount int64
	if err != nil {
		failureCount = atomic.AddInt64(&hc.failureCount, 1)
	} else {
		failureCount = atomic.LoadInt64(&hc.failureCount)
	}

	hc.statusMutex.Lock()
	defer hc.statusMutex.Unlock()

	hc.status.Timestamp = time.Now()
	if err != nil {
		hc.consecutiveFails++
		if hc.consecutiveFails >= unhealthyAfter {
			hc.status.Status = StatusUnhealthy
		} else {
			hc.status.Status = StatusDegraded
		}
		hc.status.Error = err
		hc.status.Details["consecutive_failures"] = hc.consecutiveFails
		hc.status.Details["last_error"] = err.Error()

		hc.logger.Warn("health check failed",
			zap.Error(err),
			zap.String("status", hc.status.Status),
			zap.Int("consecutive_failures", hc.consecutiveFails))
	} else {
		hc.consecutiveFails = 0
		hc.status.Status = StatusHealthy
		hc.status.Error = nil
		delete(hc.status.Details, "consecutive_failures")
		delete(hc.status.Details, "last_error")

		hc.logger.Debug("health check passed")
	}
	hc.status.Details["check_count"] = checkCount
	hc.status.Details["failure_count"] = failureCount

	return hc.copyStatus()
}

// Status returns a copy of the last observed status.
func (hc *HealthChecker) Status() core.HealthStatus {
	hc.statusMutex.RLock()
	defer hc.statusMutex.RUnlock()
	return hc.copyStatus()
}

// IsHealthy reports whether the last check passed.
func (hc *HealthChecker) IsHealthy() bool {
	hc.statusMutex.RLock()
	defer hc.statusMutex.RUnlock()
	return hc.status.Status == StatusHealthy
}

func (hc *HealthChecker) copyStatus() core.HealthStatus {
	status := hc.status
	status.Details = make(map[string]interface{}, len(hc.status.Details))
	for k, v := range hc.status.Details {
		status.Details[k] = v
	}
	return status
}
