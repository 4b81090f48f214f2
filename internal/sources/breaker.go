package sources

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
	"github.com/j-veylop/pipeline-monitor-tui/internal/metrics"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

// BreakerSettings tunes the per-source circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit after this many failures in a row.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial request.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns the settings used for every source.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	}
}

// Breaker stops calling a source that keeps failing and reports it as
// unavailable until the open timeout elapses.
type Breaker struct {
	next Adapter
	cb   *gobreaker.CircuitBreaker[any]
}

// WithBreaker wraps next with a circuit breaker.
func WithBreaker(next Adapter, settings BreakerSettings) *Breaker {
	name := next.Name()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		// A missing column is a query problem, not a sign the source is down.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSchemaMismatch) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change", "source", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Breaker{next: next, cb: cb}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Name returns the wrapped adapter's name.
func (b *Breaker) Name() string { return b.next.Name() }

// Unwrap returns the wrapped adapter.
func (b *Breaker) Unwrap() Adapter { return b.next }

// State returns the breaker state name.
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) execute(op, target string, fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, Unavailable(b.next.Name(), op, target, err)
	}
	return res, err
}

// Count runs the wrapped Count through the breaker.
func (b *Breaker) Count(ctx context.Context, target string, lookbackHours int) (int64, error) {
	res, err := b.execute(OpCount, target, func() (any, error) {
		return b.next.Count(ctx, target, lookbackHours)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// HourlySeries runs the wrapped HourlySeries through the breaker.
func (b *Breaker) HourlySeries(ctx context.Context, target string) ([]models.BucketedCount, error) {
	res, err := b.execute(OpHourlySeries, target, func() (any, error) {
		return b.next.HourlySeries(ctx, target)
	})
	if err != nil {
		return nil, err
	}
	return res.([]models.BucketedCount), nil
}

// ListTargets runs the wrapped ListTargets through the breaker.
func (b *Breaker) ListTargets(ctx context.Context, filter string) ([]string, error) {
	res, err := b.execute(OpListTargets, filter, func() (any, error) {
		return b.next.ListTargets(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}
