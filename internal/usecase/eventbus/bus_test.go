package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidgi-agent/internal/domain"
)

func newTestBus(opts ...Option) *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventMessageReceived, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventMessageReceived {
			got.Add(1)
		}
	})
	bus.Subscribe(domain.EventToolCallStarted, func(context.Context, domain.Event) {
		t.Error("typed subscriber received the wrong event type")
	})

	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(context.Context, domain.Event) { got.Add(1) })

	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))
	bus.Publish(context.Background(), newEvent(domain.EventToolCallStarted))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestDeliveryOrderPerSubscriber(t *testing.T) {
	bus := newTestBus()

	var (
		mu     sync.Mutex
		states []domain.AgentState
	)
	bus.Subscribe(domain.EventAgentStatusChanged, func(_ context.Context, e domain.Event) {
		var p domain.StatusChangedPayload
		require.NoError(t, json.Unmarshal(e.Payload, &p))
		mu.Lock()
		states = append(states, p.State)
		mu.Unlock()
	})

	want := []domain.AgentState{domain.AgentStateWorking, domain.AgentStateWorking, domain.AgentStateCompleted}
	for _, s := range want {
		bus.Publish(context.Background(), domain.NewEvent(domain.EventAgentStatusChanged, "a1",
			domain.StatusChangedPayload{State: s}))
	}
	bus.Close()

	assert.Equal(t, want, states)
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var typed, all atomic.Int32
	unsubTyped := bus.Subscribe(domain.EventMessageReceived, func(context.Context, domain.Event) { typed.Add(1) })
	unsubAll := bus.SubscribeAll(func(context.Context, domain.Event) { all.Add(1) })

	unsubTyped()
	unsubAll()
	unsubAll()
	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, typed.Load())
	assert.Zero(t, all.Load())
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventMessageReceived, func(context.Context, domain.Event) { got.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
}

func TestFullMailboxDropsInsteadOfBlocking(t *testing.T) {
	bus := newTestBus(WithMailboxSize(1))

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var got atomic.Int32
	bus.Subscribe(domain.EventMessageReceived, func(context.Context, domain.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))
	<-started // handler busy with the first event
	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived)) // fills the mailbox
	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived)) // dropped

	close(release)
	bus.Close()

	assert.Equal(t, int32(2), got.Load())
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestHandlerContextSurvivesCancel(t *testing.T) {
	bus := newTestBus()

	var agentID atomic.Value
	var ctxErr atomic.Value
	bus.SubscribeAll(func(ctx context.Context, _ domain.Event) {
		agentID.Store(domain.AgentIDFromContext(ctx))
		ctxErr.Store(ctx.Err() == nil)
	})

	ctx, cancel := context.WithCancel(domain.ContextWithAgentID(context.Background(), "agent-7"))
	cancel()
	bus.Publish(ctx, newEvent(domain.EventAgentError))
	bus.Close()

	assert.Equal(t, "agent-7", agentID.Load())
	assert.Equal(t, true, ctxErr.Load())
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventMessageReceived, func(context.Context, domain.Event) { panic("boom") })
	bus.Subscribe(domain.EventMessageReceived, func(context.Context, domain.Event) { got.Add(1) })

	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))
	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2 deliveries to the healthy handler, got %d", got.Load())
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventMessageReceived, func(context.Context, domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))
	bus.Close()
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	bus.Publish(context.Background(), newEvent(domain.EventMessageReceived))
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("expected no delivery after close, got %d", got.Load())
	}
}
