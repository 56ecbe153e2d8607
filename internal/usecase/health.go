package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"modelrelay/internal/domain"
)

const (
	// healthHistorySize caps the latency ring buffer.
	healthHistorySize = 50
	// unhealthyThreshold is how many consecutive probe failures mark the
	// gateway unhealthy.
	unhealthyThreshold = 3
)

// Prober is the probe surface the health checker needs from the gateway.
type Prober interface {
	CheckHealth(ctx context.Context) error
}

// HealthStatus is a point-in-time view of gateway health.
type HealthStatus struct {
	Healthy             bool
	ConsecutiveFailures int
	TotalRequests       int
	FailedRequests      int
	LastCheck           time.Time
	LastError           string
	AvgLatency          time.Duration
	Samples             int
}

// HealthChecker tracks gateway availability from two signal sources:
// periodic background probes and the outcomes of real routed calls.
// All state is guarded by mu; the probe loop runs in its own goroutine.
type HealthChecker struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	healthy   bool
	failures  int
	total     int // all probes and reported call outcomes
	failed    int
	lastCheck time.Time
	lastErr   string
	latencies []time.Duration // ring buffer, newest at latIdx-1
	latIdx    int
	latFull   bool

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHealthChecker builds a checker that starts optimistic: the gateway is
// assumed healthy until probes or call outcomes say otherwise.
func NewHealthChecker(prober Prober, interval time.Duration, logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		prober:    prober,
		interval:  interval,
		logger:    logger,
		healthy:   true,
		latencies: make([]time.Duration, healthHistorySize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background probe loop: one immediate probe, then one
// per interval until Stop or ctx cancellation.
func (h *HealthChecker) Start(ctx context.Context) {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	go func() {
		defer close(h.done)

		h.CheckHealth(ctx)

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C:
				h.CheckHealth(ctx)
			}
		}
	}()
}

// Stop terminates the probe loop and waits for it to exit. Idempotent, and
// a no-op if Start was never called.
func (h *HealthChecker) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.mu.Lock()
		started := h.started
		h.mu.Unlock()
		if started {
			<-h.done
		}
	})
}

// CheckHealth runs one probe and folds the result into the tracked state.
func (h *HealthChecker) CheckHealth(ctx context.Context) error {
	start := time.Now()
	err := h.prober.CheckHealth(ctx)
	if err != nil {
		h.RecordFailure(err)
		return domain.WrapRouteError(domain.CodeHealthCheck, "gateway health probe failed", err)
	}
	h.RecordSuccess(time.Since(start))
	return nil
}

// RecordSuccess notes a successful gateway interaction and its latency.
// One success restores health regardless of the prior failure streak.
func (h *HealthChecker) RecordSuccess(latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.healthy {
		h.logger.Info("gateway recovered")
	}
	h.healthy = true
	h.failures = 0
	h.total++
	h.lastCheck = time.Now()
	h.lastErr = ""

	h.latencies[h.latIdx] = latency
	h.latIdx++
	if h.latIdx == len(h.latencies) {
		h.latIdx = 0
		h.latFull = true
	}
}

// RecordFailure notes a failed gateway interaction. The gateway flips to
// unhealthy once failures reach the consecutive threshold.
func (h *HealthChecker) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++
	h.total++
	h.failed++
	h.lastCheck = time.Now()
	if err != nil {
		h.lastErr = err.Error()
	}
	if h.failures >= unhealthyThreshold && h.healthy {
		h.healthy = false
		h.logger.Warn("gateway marked unhealthy",
			"consecutive_failures", h.failures, "last_error", h.lastErr)
	}
}

// IsHealthy reports the current advisory health flag.
func (h *HealthChecker) IsHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}

// Status returns a snapshot of the tracked health state.
func (h *HealthChecker) Status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.latIdx
	if h.latFull {
		n = len(h.latencies)
	}
	var avg time.Duration
	if n > 0 {
		var sum time.Duration
		for i := 0; i < n; i++ {
			sum += h.latencies[i]
		}
		avg = sum / time.Duration(n)
	}
	return HealthStatus{
		Healthy:             h.healthy,
		ConsecutiveFailures: h.failures,
		TotalRequests:       h.total,
		FailedRequests:      h.failed,
		LastCheck:           h.lastCheck,
		LastError:           h.lastErr,
		AvgLatency:          avg,
		Samples:             n,
	}
}

// Reset restores the optimistic initial state and clears history.
func (h *HealthChecker) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = true
	h.failures = 0
	h.total = 0
	h.failed = 0
	h.lastErr = ""
	h.latIdx = 0
	h.latFull = false
}
