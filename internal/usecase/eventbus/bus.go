// Package eventbus is the in-process publisher for agent lifecycle events.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"tidgi-agent/internal/domain"
)

// DefaultMailboxSize is the per-subscriber queue length.
const DefaultMailboxSize = 1024

type envelope struct {
	ctx   context.Context
	event domain.Event
}

// subscription delivers to one handler, in publish order, from its own
// goroutine.
type subscription struct {
	id      uint64
	handler domain.EventHandler
	mailbox chan envelope
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Bus is an in-process, goroutine-safe event bus. Publish never blocks:
// each subscriber has a bounded mailbox and events that do not fit are
// dropped and counted.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]*subscription
	allSubs []*subscription
	nextID  atomic.Uint64
	dropped atomic.Uint64
	logger  *slog.Logger
	size    int
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithMailboxSize overrides DefaultMailboxSize.
func WithMailboxSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.size = n
		}
	}
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		typed:  make(map[domain.EventType][]*subscription),
		logger: logger,
		size:   DefaultMailboxSize,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish queues event for matching typed subscribers and all-event
// subscribers. Handlers receive ctx detached from its cancellation.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	env := envelope{ctx: context.WithoutCancel(ctx), event: event}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.typed[event.Type] {
		b.enqueue(sub, env)
	}
	for _, sub := range b.allSubs {
		b.enqueue(sub, env)
	}
}

func (b *Bus) enqueue(sub *subscription, env envelope) {
	select {
	case sub.mailbox <- env:
	default:
		n := b.dropped.Add(1)
		b.logger.Warn("event dropped, subscriber mailbox full",
			"event", string(env.event.Type), "subscription", sub.id, "dropped_total", n)
	}
}

// Dropped returns how many deliveries were discarded because a mailbox was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

func (b *Bus) start(handler domain.EventHandler) *subscription {
	sub := &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		mailbox: make(chan envelope, b.size),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run(sub)
	return sub
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case env := <-sub.mailbox:
			b.deliver(sub, env)
		case <-sub.done:
			for {
				select {
				case env := <-sub.mailbox:
					b.deliver(sub, env)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(sub *subscription, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(env.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(env.ctx, env.event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := b.start(handler)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s == sub {
				b.typed[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.stop()
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := b.start(handler)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		for i, s := range b.allSubs {
			if s == sub {
				b.allSubs = append(b.allSubs[:i:i], b.allSubs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.stop()
	}
}

// Close stops accepting events, delivers what is queued and waits for
// every subscriber goroutine to exit. It is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.RLock()
	for _, subs := range b.typed {
		for _, s := range subs {
			s.stop()
		}
	}
	for _, s := range b.allSubs {
		s.stop()
	}
	b.mu.RUnlock()
	b.wg.Wait()
}
