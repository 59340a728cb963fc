package usecase

import (
	"context"
	"fmt"
	"sync"
)

// AgentLocker serializes rounds per agent instance so two invocations never
// append to the same history concurrently.
type AgentLocker struct {
	mu    sync.Mutex
	slots map[string]*agentSlot
}

type agentSlot struct {
	sem  chan struct{}
	refs int
}

// NewAgentLocker creates an empty locker.
func NewAgentLocker() *AgentLocker {
	return &AgentLocker{slots: make(map[string]*agentSlot)}
}

// Lock blocks until agentID is free or ctx is done. The returned unlock
// must be called exactly once.
func (l *AgentLocker) Lock(ctx context.Context, agentID string) (unlock func(), err error) {
	l.mu.Lock()
	slot, ok := l.slots[agentID]
	if !ok {
		slot = &agentSlot{sem: make(chan struct{}, 1)}
		l.slots[agentID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.sem
				l.release(agentID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(agentID, slot)
		return nil, fmt.Errorf("agent lock: %w", ctx.Err())
	}
}

func (l *AgentLocker) release(agentID string, slot *agentSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, agentID)
	}
}

// ActiveCount returns the number of agents with held or pending locks.
func (l *AgentLocker) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
