package usecase

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"modelrelay/internal/domain"
	"modelrelay/internal/infra/config"
)

// Breaker defaults, applied when the config leaves a field zero.
const (
	defaultMaxFailures      = 5
	defaultBreakerTimeout   = 60 * time.Second
	defaultHalfOpenMaxCalls = 3
)

// BreakerSnapshot is a point-in-time view of breaker state for diagnostics.
type BreakerSnapshot struct {
	State        string
	FailureCount uint32 // consecutive failures in the current window
	SuccessCount uint32 // consecutive successes in the current window
	LastFailure  time.Time
	LastSuccess  time.Time
}

// Breaker guards the primary gateway path. It wraps sony/gobreaker and maps
// its rejections into the routing error taxonomy. Reset swaps in a fresh
// breaker instance, so the inner pointer is read under the mutex; the inner
// breaker itself is already safe for concurrent Execute calls.
type Breaker struct {
	name   string
	cfg    config.BreakerConfig
	logger *slog.Logger

	mu          sync.Mutex
	cb          *gobreaker.CircuitBreaker[*domain.LLMResponse]
	lastFailure time.Time
	lastSuccess time.Time
}

// NewBreaker builds a breaker named for the path it protects.
func NewBreaker(name string, cfg config.BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = int(defaultBreakerTimeout / time.Millisecond)
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = defaultHalfOpenMaxCalls
	}
	b := &Breaker{name: name, cfg: cfg, logger: logger}
	b.cb = b.newInner()
	return b
}

func (b *Breaker) newInner() *gobreaker.CircuitBreaker[*domain.LLMResponse] {
	maxFailures := b.cfg.MaxFailures
	return gobreaker.NewCircuitBreaker[*domain.LLMResponse](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.cfg.HalfOpenMaxCalls,
		Timeout:     b.cfg.BreakerTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Execute runs fn through the breaker. Rejections while the circuit is open
// or over the half-open probe budget come back as CIRCUIT_OPEN errors.
func (b *Breaker) Execute(fn func() (*domain.LLMResponse, error)) (*domain.LLMResponse, error) {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()

	resp, err := cb.Execute(fn)

	b.mu.Lock()
	if err != nil {
		b.lastFailure = time.Now()
	} else {
		b.lastSuccess = time.Now()
	}
	b.mu.Unlock()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.WrapRouteError(domain.CodeCircuitOpen, "circuit breaker rejected call", err)
	}
	return resp, err
}

// Snapshot reports the breaker's current state and counters.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := b.cb.Counts()
	return BreakerSnapshot{
		State:        b.cb.State().String(),
		FailureCount: counts.ConsecutiveFailures,
		SuccessCount: counts.ConsecutiveSuccesses,
		LastFailure:  b.lastFailure,
		LastSuccess:  b.lastSuccess,
	}
}

// Reset returns the breaker to a fresh closed state by replacing the inner
// instance. In-flight calls finish against the old instance.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = b.newInner()
	b.logger.Info("circuit breaker reset", "breaker", b.name)
}
