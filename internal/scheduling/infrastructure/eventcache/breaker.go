package eventcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// ErrStoreUnavailable is returned while the store circuit is open.
var ErrStoreUnavailable = errors.New("backing store unavailable")

// BreakerConfig configures a BreakingReader.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is the period of the open state.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that trips
	// the circuit.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns a sensible default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakingReader guards an ActivityReader with a circuit breaker so a
// failing store is not hammered by every cache miss. Calls are never
// retried; while the circuit is open they fail fast with
// ErrStoreUnavailable.
type BreakingReader struct {
	next    domain.ActivityReader
	breaker *gobreaker.CircuitBreaker[[]*domain.Activity]
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewBreakingReader wraps next.
func NewBreakingReader(next domain.ActivityReader, cfg BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *BreakingReader {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}

	r := &BreakingReader{next: next, logger: logger, metrics: metrics}
	r.breaker = gobreaker.NewCircuitBreaker[[]*domain.Activity](gobreaker.Settings{
		Name:        "activity-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller giving up is not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			r.metrics.Gauge(observability.MetricStoreBreakerOpen, open)
		},
	})
	return r
}

// FindInRange loads activities through the breaker.
func (r *BreakingReader) FindInRange(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]*domain.Activity, error) {
	activities, err := r.breaker.Execute(func() ([]*domain.Activity, error) {
		return r.next.FindInRange(ctx, schedule, from, to)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrStoreUnavailable
	}
	return activities, err
}

// FindByRef is not guarded; pre-commit snapshots must observe the store
// directly.
func (r *BreakingReader) FindByRef(ctx context.Context, ref domain.EventRef) (*domain.Activity, error) {
	return r.next.FindByRef(ctx, ref)
}

// State returns the breaker state name.
func (r *BreakingReader) State() string {
	return r.breaker.State().String()
}
