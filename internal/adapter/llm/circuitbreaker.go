package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

var _ Streamer = (*CircuitBreakerStreamer)(nil)

// CircuitBreakerStreamer guards stream initiation with a circuit breaker.
// Once a stream is open its mid-stream failures do not trip the breaker.
type CircuitBreakerStreamer struct {
	inner   Streamer
	breaker *gobreaker.CircuitBreaker[<-chan Delta]
	logger  *slog.Logger
}

// NewCircuitBreakerStreamer wraps inner with a circuit breaker.
// Zero-valued settings fall back to defaults.
func NewCircuitBreakerStreamer(inner Streamer, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerStreamer {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[<-chan Delta](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Bad requests say nothing about provider health.
		IsSuccessful: isClientError,
	})

	return &CircuitBreakerStreamer{inner: inner, breaker: cb, logger: logger}
}

// ChatStream implements Streamer.
func (s *CircuitBreakerStreamer) ChatStream(ctx context.Context, req ChatRequest) (<-chan Delta, error) {
	ch, err := s.breaker.Execute(func() (<-chan Delta, error) {
		return s.inner.ChatStream(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: provider %q: %v", domain.ErrCircuitOpen, s.inner.Name(), err)
		}
		return nil, err
	}
	return ch, nil
}

// Name implements Streamer.
func (s *CircuitBreakerStreamer) Name() string { return s.inner.Name() }

// State returns the current breaker state.
func (s *CircuitBreakerStreamer) State() gobreaker.State { return s.breaker.State() }
