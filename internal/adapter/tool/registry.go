package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tidgi-agent/internal/domain"
)

var (
	_ domain.ToolExecutor = (*Registry)(nil)
	_ domain.ToolCatalog  = (*Registry)(nil)
)

type entry struct {
	tool    Tool
	limiter *RateLimiter
}

// Registry holds tools by id and executes them for the orchestrator.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	logger *slog.Logger
}

// RegisterOption customises a single registration.
type RegisterOption func(*entry)

// WithRateLimit allows at most limit calls of the tool per window.
func WithRateLimit(limit int, window time.Duration) RegisterOption {
	return func(e *entry) {
		if limit > 0 && window > 0 {
			e.limiter = NewRateLimiter(limit, window)
		}
	}
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]entry),
		logger: logger,
	}
}

// Register adds a tool. Tools declaring a parameter schema are wrapped with
// validation; a schema that fails to compile rejects the registration.
func (r *Registry) Register(t Tool, opts ...RegisterOption) error {
	id := t.Describe().ID
	if id == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "tool id is empty")
	}
	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, err.Error())
	}

	e := entry{tool: wrapped}
	for _, opt := range opts {
		opt(&e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[id]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("tool %q", id))
	}
	r.tools[id] = e
	return nil
}

// Get retrieves a tool by id.
func (r *Registry) Get(id string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[id]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, id)
	}
	return e.tool, nil
}

// Describe implements domain.ToolCatalog. Tools are sorted by id.
func (r *Registry) Describe() []domain.ToolDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ToolDescription, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.tool.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ExecuteTool implements domain.ToolExecutor.
func (r *Registry) ExecuteTool(ctx context.Context, call domain.ToolCall, scope domain.ToolScope) domain.ToolResult {
	r.mu.RLock()
	e, ok := r.tools[call.ToolID]
	r.mu.RUnlock()

	if !ok {
		err := domain.NewSubSystemError("tool", "Registry.ExecuteTool", domain.ErrToolNotFound, call.ToolID)
		return domain.ToolResult{Error: err.Error()}
	}
	if e.limiter != nil && !e.limiter.Allow() {
		r.logger.Warn("tool rate limited", "tool", call.ToolID, "agent_id", scope.AgentID)
		return domain.ToolResult{Error: fmt.Sprintf("tool %q is rate limited, try again later", call.ToolID)}
	}
	return e.tool.Execute(ctx, call.Parameters, scope)
}
