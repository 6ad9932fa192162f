package inference

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"pkt.systems/codebench/core"
	"pkt.systems/pslog"
)

// Default circuit breaker settings.
const (
	DefaultBreakerMaxFailures uint32        = 5
	DefaultBreakerTimeout     time.Duration = 30 * time.Second
	DefaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker around a generator.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration
}

// BreakerGenerator fails fast while the wrapped generator keeps failing.
type BreakerGenerator struct {
	inner   core.Generator
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerGenerator wraps inner with a circuit breaker.
func NewBreakerGenerator(inner core.Generator, cfg BreakerConfig, logger pslog.Logger) *BreakerGenerator {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultBreakerInterval
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("inference breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Canceled callers and malformed bodies say nothing about availability.
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return core.RemoteErrorKindOf(err) == core.RemoteErrorMalformed
		},
	})
	return &BreakerGenerator{inner: inner, breaker: cb}
}

// Generate implements core.Generator through the circuit breaker.
func (b *BreakerGenerator) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	text, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &core.RemoteError{
			Kind:    core.RemoteErrorTransport,
			Op:      "generate",
			Message: "inference service temporarily unavailable",
			Err:     err,
		}
	}
	return text, err
}

// State reports the breaker state for diagnostics.
func (b *BreakerGenerator) State() string {
	return b.breaker.State().String()
}
