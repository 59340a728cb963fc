// Package hooks provides the per-round hook registry plugins attach to.
package hooks

import (
	"log/slog"
	"sync"

	"tidgi-agent/internal/domain"
)

// Hook names.
const (
	HookUserMessageReceived = "userMessageReceived"
	HookAgentStatusChanged  = "agentStatusChanged"
	HookResponseUpdate      = "responseUpdate"
	HookResponseComplete    = "responseComplete"
	HookToolExecuted        = "toolExecuted"
	HookProcessPrompts      = "processPrompts"
	HookFinalizePrompts     = "finalizePrompts"
	HookPostProcess         = "postProcess"
)

// Registry is the set of hook points for one pipeline invocation. It is
// built fresh for every round and never shared between agents.
type Registry struct {
	UserMessageReceived *SeriesHook[UserMessageEvent]
	AgentStatusChanged  *SeriesHook[StatusEvent]
	ResponseUpdate      *SeriesHook[ResponseEvent]
	ResponseComplete    *DecisionHook[ResponseEvent]
	ToolExecuted        *SeriesHook[ToolExecutedEvent]
	ProcessPrompts      *WaterfallHook[PromptContext]
	FinalizePrompts     *WaterfallHook[PromptContext]
	PostProcess         *WaterfallHook[ResponseContext]

	mu        sync.Mutex
	executors map[string]domain.ToolExecutor
	kinds     map[domain.PluginKind]bool
	closers   []func() error
	logger    *slog.Logger
}

// NewRegistry creates a registry with empty hooks.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		UserMessageReceived: NewSeriesHook[UserMessageEvent](HookUserMessageReceived, logger),
		AgentStatusChanged:  NewSeriesHook[StatusEvent](HookAgentStatusChanged, logger),
		ResponseUpdate:      NewSeriesHook[ResponseEvent](HookResponseUpdate, logger),
		ResponseComplete:    NewDecisionHook[ResponseEvent](HookResponseComplete, logger),
		ToolExecuted:        NewSeriesHook[ToolExecutedEvent](HookToolExecuted, logger),
		ProcessPrompts:      NewWaterfallHook(HookProcessPrompts, logger, PromptContext.Clone),
		FinalizePrompts:     NewWaterfallHook(HookFinalizePrompts, logger, PromptContext.Clone),
		PostProcess:         NewWaterfallHook(HookPostProcess, logger, ResponseContext.Clone),
		executors:           make(map[string]domain.ToolExecutor),
		kinds:               make(map[domain.PluginKind]bool),
		logger:              logger,
	}
}

// Logger returns the registry's logger.
func (r *Registry) Logger() *slog.Logger { return r.logger }

// MarkKind records that kind registered its handlers. It returns false if
// the kind was already registered on this registry.
func (r *Registry) MarkKind(kind domain.PluginKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kinds[kind] {
		return false
	}
	r.kinds[kind] = true
	return true
}

// HasKind reports whether kind registered on this registry.
func (r *Registry) HasKind(kind domain.PluginKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kinds[kind]
}

// RegisterToolExecutor routes calls for toolID to exec. Later registrations
// replace earlier ones.
func (r *Registry) RegisterToolExecutor(toolID string, exec domain.ToolExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[toolID] = exec
}

// ToolExecutor returns the plugin-provided executor for toolID.
func (r *Registry) ToolExecutor(toolID string) (domain.ToolExecutor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.executors[toolID]
	return exec, ok
}

// OnClose registers a cleanup to run when the round ends.
func (r *Registry) OnClose(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, fn)
}

// Close runs cleanups in reverse registration order. Errors are logged.
func (r *Registry) Close() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := safeCall(closers[i]); err != nil {
			r.logger.Warn("hook registry cleanup failed", "error", err)
		}
	}
}
