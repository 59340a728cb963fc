package hooks

import (
	"context"
	"fmt"
	"log/slog"
)

type tap[F any] struct {
	name string
	fn   F
}

// safeCall runs fn, converting a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return fn()
}

// SeriesHook runs its handlers sequentially in registration order. Handlers
// share the same argument and do not transform it for each other.
type SeriesHook[T any] struct {
	name   string
	logger *slog.Logger
	taps   []tap[func(context.Context, T) error]
}

// NewSeriesHook creates an empty series hook.
func NewSeriesHook[T any](name string, logger *slog.Logger) *SeriesHook[T] {
	return &SeriesHook[T]{name: name, logger: logger}
}

// Tap appends a handler.
func (h *SeriesHook[T]) Tap(name string, fn func(context.Context, T) error) {
	h.taps = append(h.taps, tap[func(context.Context, T) error]{name: name, fn: fn})
}

// Len returns the number of registered handlers.
func (h *SeriesHook[T]) Len() int { return len(h.taps) }

// Call invokes every handler. Failing handlers are logged and skipped; the
// number of failures is returned.
func (h *SeriesHook[T]) Call(ctx context.Context, arg T) int {
	failed := 0
	for _, t := range h.taps {
		if err := safeCall(func() error { return t.fn(ctx, arg) }); err != nil {
			failed++
			h.logger.Warn("hook handler failed", "hook", h.name, "handler", t.name, "error", err)
		}
	}
	return failed
}

// DecisionHook is a series hook whose handlers may influence control flow.
// Decisions are merged in registration order.
type DecisionHook[T any] struct {
	name   string
	logger *slog.Logger
	taps   []tap[func(context.Context, T) (Decision, error)]
}

// NewDecisionHook creates an empty decision hook.
func NewDecisionHook[T any](name string, logger *slog.Logger) *DecisionHook[T] {
	return &DecisionHook[T]{name: name, logger: logger}
}

// Tap appends a handler.
func (h *DecisionHook[T]) Tap(name string, fn func(context.Context, T) (Decision, error)) {
	h.taps = append(h.taps, tap[func(context.Context, T) (Decision, error)]{name: name, fn: fn})
}

// Len returns the number of registered handlers.
func (h *DecisionHook[T]) Len() int { return len(h.taps) }

// Call invokes every handler and returns the merged decision. A failing
// handler contributes nothing.
func (h *DecisionHook[T]) Call(ctx context.Context, arg T) Decision {
	var merged Decision
	for _, t := range h.taps {
		var d Decision
		err := safeCall(func() error {
			var err error
			d, err = t.fn(ctx, arg)
			return err
		})
		if err != nil {
			h.logger.Warn("hook handler failed", "hook", h.name, "handler", t.name, "error", err)
			continue
		}
		merged = merged.Merge(d)
	}
	return merged
}

// WaterfallHook threads a value through its handlers: each receives the
// previous handler's output. A failing handler is skipped and the value it
// received passes on unchanged.
type WaterfallHook[T any] struct {
	name   string
	logger *slog.Logger
	clone  func(T) T
	taps   []tap[func(context.Context, T) (T, Decision, error)]
}

// NewWaterfallHook creates an empty waterfall hook. clone, when non-nil,
// copies the value before each handler so failed handlers leave no trace.
func NewWaterfallHook[T any](name string, logger *slog.Logger, clone func(T) T) *WaterfallHook[T] {
	return &WaterfallHook[T]{name: name, logger: logger, clone: clone}
}

// Tap appends a handler.
func (h *WaterfallHook[T]) Tap(name string, fn func(context.Context, T) (T, Decision, error)) {
	h.taps = append(h.taps, tap[func(context.Context, T) (T, Decision, error)]{name: name, fn: fn})
}

// Len returns the number of registered handlers.
func (h *WaterfallHook[T]) Len() int { return len(h.taps) }

// Call runs the chain and returns the final value plus the merged decision.
func (h *WaterfallHook[T]) Call(ctx context.Context, initial T) (T, Decision) {
	value := initial
	var merged Decision
	for _, t := range h.taps {
		in := value
		if h.clone != nil {
			in = h.clone(value)
		}
		var (
			out T
			d   Decision
		)
		err := safeCall(func() error {
			var err error
			out, d, err = t.fn(ctx, in)
			return err
		})
		if err != nil {
			h.logger.Warn("hook handler failed", "hook", h.name, "handler", t.name, "error", err)
			continue
		}
		value = out
		merged = merged.Merge(d)
	}
	return value, merged
}
