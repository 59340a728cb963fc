package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidgi-agent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSeriesHookRunsAllHandlersInOrder(t *testing.T) {
	h := NewSeriesHook[int]("test", testLogger())
	var order []string
	h.Tap("a", func(_ context.Context, v int) error { order = append(order, "a"); return nil })
	h.Tap("b", func(_ context.Context, v int) error { order = append(order, "b"); return errors.New("boom") })
	h.Tap("c", func(_ context.Context, v int) error { order = append(order, "c"); panic("bad plugin") })
	h.Tap("d", func(_ context.Context, v int) error { order = append(order, "d"); return nil })

	failed := h.Call(context.Background(), 1)

	assert.Equal(t, 2, failed)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
	assert.Equal(t, 4, h.Len())
}

func TestPluginIsolationCounts(t *testing.T) {
	reg := NewRegistry(testLogger())
	counts := make([]int, 5)
	for i := range counts {
		reg.ToolExecuted.Tap("p", func(context.Context, ToolExecutedEvent) error {
			counts[i]++
			if i == 2 {
				return errors.New("plugin failure")
			}
			return nil
		})
	}

	const calls = 3
	for range calls {
		reg.ToolExecuted.Call(context.Background(), ToolExecutedEvent{})
	}
	for i, c := range counts {
		assert.Equal(t, calls, c, "handler %d", i)
	}
}

func TestDecisionHookMerges(t *testing.T) {
	h := NewDecisionHook[string]("complete", testLogger())
	h.Tap("human", func(context.Context, string) (Decision, error) {
		return Decision{YieldTo: YieldHuman}, nil
	})
	h.Tap("broken", func(context.Context, string) (Decision, error) {
		return Decision{YieldTo: YieldSelf}, errors.New("ignored")
	})
	h.Tap("agent", func(context.Context, string) (Decision, error) {
		return Decision{YieldTo: YieldAgent, NextUserMessage: "go on"}, nil
	})

	d := h.Call(context.Background(), "x")
	assert.Equal(t, YieldAgent, d.YieldTo)
	assert.Equal(t, "go on", d.NextUserMessage)
}

func TestDecisionMergePrecedence(t *testing.T) {
	first := &domain.ToolCall{ToolID: "first"}
	second := &domain.ToolCall{ToolID: "second"}

	tests := []struct {
		name string
		in   []Decision
		want Decision
	}{
		{"empty", nil, Decision{}},
		{"self beats human", []Decision{{YieldTo: YieldHuman}, {YieldTo: YieldSelf}}, Decision{YieldTo: YieldSelf}},
		{"self beats agent", []Decision{{YieldTo: YieldSelf}, {YieldTo: YieldAgent}}, Decision{YieldTo: YieldSelf}},
		{"agent beats human", []Decision{{YieldTo: YieldHuman}, {YieldTo: YieldAgent}}, Decision{YieldTo: YieldAgent}},
		{"first tool call wins", []Decision{{ToolCall: first}, {ToolCall: second}}, Decision{ToolCall: first}},
		{"first message wins", []Decision{{}, {NextUserMessage: "a"}, {NextUserMessage: "b"}}, Decision{NextUserMessage: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Decision
			for _, d := range tt.in {
				got = got.Merge(d)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, YieldHuman, Decision{}.Target())
	assert.False(t, Decision{}.Continue())
	assert.True(t, Decision{YieldTo: YieldSelf}.Continue())
}

func TestWaterfallHookThreadsValue(t *testing.T) {
	h := NewWaterfallHook[int]("wf", testLogger(), nil)
	h.Tap("double", func(_ context.Context, v int) (int, Decision, error) { return v * 2, Decision{}, nil })
	h.Tap("fail", func(_ context.Context, v int) (int, Decision, error) {
		return -1, Decision{YieldTo: YieldSelf}, errors.New("boom")
	})
	h.Tap("inc", func(_ context.Context, v int) (int, Decision, error) {
		return v + 1, Decision{YieldTo: YieldHuman}, nil
	})

	got, d := h.Call(context.Background(), 5)
	assert.Equal(t, 11, got)
	assert.Equal(t, YieldHuman, d.YieldTo, "failed handler decision is discarded")
}

func TestWaterfallHookIsolatesPartialMutation(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.ProcessPrompts.Tap("mutate-then-panic", func(_ context.Context, pc PromptContext) (PromptContext, Decision, error) {
		pc.Prompts[0].Text = "corrupted"
		panic("halfway")
	})
	reg.ProcessPrompts.Tap("append", func(_ context.Context, pc PromptContext) (PromptContext, Decision, error) {
		pc.Prompts = append(pc.Prompts, &domain.PromptNode{ID: "extra", Text: "more"})
		return pc, Decision{}, nil
	})

	initial := PromptContext{Prompts: []*domain.PromptNode{{ID: "root", Text: "original"}}}
	out, _ := reg.ProcessPrompts.Call(context.Background(), initial)

	require.Len(t, out.Prompts, 2)
	assert.Equal(t, "original", out.Prompts[0].Text)
	assert.Equal(t, "original", initial.Prompts[0].Text)
}

func TestRegistryKindsAndExecutors(t *testing.T) {
	reg := NewRegistry(nil)

	assert.True(t, reg.MarkKind(domain.PluginToolCalling))
	assert.False(t, reg.MarkKind(domain.PluginToolCalling))
	assert.True(t, reg.HasKind(domain.PluginToolCalling))
	assert.False(t, reg.HasKind(domain.PluginMCP))

	_, ok := reg.ToolExecutor("search")
	assert.False(t, ok)

	exec := executorFunc(func(context.Context, domain.ToolCall, domain.ToolScope) domain.ToolResult {
		return domain.ToolResult{Success: true}
	})
	reg.RegisterToolExecutor("search", exec)
	got, ok := reg.ToolExecutor("search")
	require.True(t, ok)
	assert.True(t, got.ExecuteTool(context.Background(), domain.ToolCall{}, domain.ToolScope{}).Success)
}

func TestRegistryCloseRunsInReverse(t *testing.T) {
	reg := NewRegistry(testLogger())
	var order []int
	reg.OnClose(func() error { order = append(order, 1); return nil })
	reg.OnClose(func() error { order = append(order, 2); return errors.New("ignored") })
	reg.OnClose(func() error { order = append(order, 3); return nil })

	reg.Close()
	reg.Close()

	assert.Equal(t, []int{3, 2, 1}, order)
}

type executorFunc func(context.Context, domain.ToolCall, domain.ToolScope) domain.ToolResult

func (f executorFunc) ExecuteTool(ctx context.Context, call domain.ToolCall, scope domain.ToolScope) domain.ToolResult {
	return f(ctx, call, scope)
}
