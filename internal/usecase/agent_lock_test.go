package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAgentLockerBasic(t *testing.T) {
	l := NewAgentLocker()

	unlock, err := l.Lock(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if l.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", l.ActiveCount())
	}

	unlock()
	if l.ActiveCount() != 0 {
		t.Errorf("ActiveCount after unlock = %d, want 0", l.ActiveCount())
	}
}

func TestAgentLockerSerializesSameAgent(t *testing.T) {
	l := NewAgentLocker()

	unlock1, err := l.Lock(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Lock1: %v", err)
	}

	order := make(chan int, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock2, err := l.Lock(context.Background(), "agent-1")
		if err != nil {
			t.Errorf("Lock2: %v", err)
			return
		}
		order <- 2
		unlock2()
	}()

	time.Sleep(50 * time.Millisecond)
	order <- 1
	unlock1()

	wg.Wait()
	close(order)

	vals := make([]int, 0, 2)
	for v := range order {
		vals = append(vals, v)
	}
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 2 {
		t.Errorf("order = %v, want [1, 2]", vals)
	}
}

func TestAgentLockerDifferentAgents(t *testing.T) {
	l := NewAgentLocker()

	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock b should not block: %v", err)
	}
	defer unlockB()

	if l.ActiveCount() != 2 {
		t.Errorf("ActiveCount = %d, want 2", l.ActiveCount())
	}
}

func TestAgentLockerContextCancelled(t *testing.T) {
	l := NewAgentLocker()

	unlock, err := l.Lock(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "agent-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if l.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1 (waiter released its ref)", l.ActiveCount())
	}
}

func TestAgentLockerDoubleUnlock(t *testing.T) {
	l := NewAgentLocker()

	unlock, err := l.Lock(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	unlock()
	unlock()

	if l.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", l.ActiveCount())
	}
	unlock2, err := l.Lock(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock2()
}
