package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/config"
)

var _ Streamer = (*RateLimitedStreamer)(nil)

// RateLimitedStreamer waits for a token before opening each stream.
type RateLimitedStreamer struct {
	inner   Streamer
	limiter *rate.Limiter
}

// NewRateLimitedStreamer returns inner unchanged when cfg disables limiting.
func NewRateLimitedStreamer(inner Streamer, cfg config.RateLimitConfig) Streamer {
	if cfg.RequestsPerSecond <= 0 {
		return inner
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedStreamer{inner: inner, limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)}
}

// ChatStream implements Streamer.
func (s *RateLimitedStreamer) ChatStream(ctx context.Context, req ChatRequest) (<-chan Delta, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRequestCanceled, err)
		}
		return nil, fmt.Errorf("%w: provider %q: %v", domain.ErrRateLimit, s.inner.Name(), err)
	}
	return s.inner.ChatStream(ctx, req)
}

// Name implements Streamer.
func (s *RateLimitedStreamer) Name() string { return s.inner.Name() }
