package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tidgi-agent/internal/domain"
)

var _ Streamer = (*FailoverStreamer)(nil)

// FailoverStreamer opens the stream on the primary provider and tries each
// fallback in order when that fails. Fallbacks use their own default model.
type FailoverStreamer struct {
	primary   Streamer
	fallbacks []Streamer
	logger    *slog.Logger
}

// NewFailoverStreamer creates a failover-capable streamer.
func NewFailoverStreamer(primary Streamer, fallbacks []Streamer, logger *slog.Logger) *FailoverStreamer {
	return &FailoverStreamer{primary: primary, fallbacks: fallbacks, logger: logger}
}

// ChatStream implements Streamer.
func (f *FailoverStreamer) ChatStream(ctx context.Context, req ChatRequest) (<-chan Delta, error) {
	ch, err := f.primary.ChatStream(ctx, req)
	if err == nil {
		return ch, nil
	}
	if errors.Is(err, domain.ErrRequestCanceled) || ctx.Err() != nil {
		return nil, err
	}
	f.logger.Warn("primary llm failed, trying fallbacks", "primary", f.primary.Name(), "error", err)

	errs := []error{fmt.Errorf("%s: %w", f.primary.Name(), err)}
	fbReq := req
	fbReq.Model = ""
	for _, fb := range f.fallbacks {
		ch, err := fb.ChatStream(ctx, fbReq)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return ch, nil
		}
		f.logger.Warn("fallback llm failed", "provider", fb.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", fb.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Name returns a composite name.
func (f *FailoverStreamer) Name() string {
	return f.primary.Name() + "+failover"
}
