package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

const (
	defaultMCPTimeout         = 30 * time.Second
	defaultMCPFallbackMessage = "External tools are currently unavailable."
)

// mcpState tracks the sessions opened for one registry.
type mcpState struct {
	mu       sync.Mutex
	sessions map[string]domain.MCPSession
	tools    map[string][]string // config id -> tool ids
}

func registerMCP(reg *hooks.Registry, deps Deps) error {
	logger := deps.logger().With("plugin", domain.PluginMCP)
	state := &mcpState{
		sessions: make(map[string]domain.MCPSession),
		tools:    make(map[string][]string),
	}
	reg.OnClose(state.close)

	reg.ProcessPrompts.Tap(string(domain.PluginMCP),
		func(ctx context.Context, pc hooks.PromptContext) (hooks.PromptContext, hooks.Decision, error) {
			if pc.Config.PluginID != domain.PluginMCP {
				return pc, hooks.Decision{}, nil
			}
			p := pc.Config.MCPParam

			tools, err := state.connect(ctx, reg, deps.MCP, pc.Config)
			if err != nil {
				logger.Warn("mcp server unavailable", "id", pc.Config.ID, "server", p.ServerName, "error", err)
				fallback := p.FallbackMessage
				if fallback == "" {
					fallback = defaultMCPFallbackMessage
				}
				placeNode(&pc, p.Placement, newNode(pc.Config, fallback), logger)
				return pc, hooks.Decision{}, nil
			}
			if len(tools) == 0 {
				return pc, hooks.Decision{}, nil
			}
			text := describeTools(tools)
			if pc.Config.Content != "" {
				text = strings.TrimSpace(pc.Config.Content) + "\n\n" + text
			}
			placeNode(&pc, p.Placement, newNode(pc.Config, text), logger)
			return pc, hooks.Decision{}, nil
		})

	reg.PostProcess.Tap(string(domain.PluginMCP),
		func(_ context.Context, rc hooks.ResponseContext) (hooks.ResponseContext, hooks.Decision, error) {
			if rc.Config.PluginID != domain.PluginMCP {
				return rc, hooks.Decision{}, nil
			}
			ids := state.toolIDs(rc.Config.ID)
			if len(ids) == 0 {
				return rc, hooks.Decision{}, nil
			}
			call, ok := defaultMatcher.find(rc.LLMResponse, allowList(ids))
			if !ok {
				return rc, hooks.Decision{}, nil
			}
			call.PluginID = rc.Config.ID
			return rc, hooks.Decision{YieldTo: hooks.YieldSelf, ToolCall: &call}, nil
		})

	reg.ToolExecuted.Tap(string(domain.PluginMCP), appendToolResult(domain.PluginMCP))
	return nil
}

// connect opens the session for cfg once per registry, lists its tools and
// registers an executor for each.
func (s *mcpState) connect(ctx context.Context, reg *hooks.Registry, dialer domain.MCPDialer, cfg domain.PluginConfig) ([]domain.ToolDescription, error) {
	if dialer == nil {
		return nil, domain.NewSubSystemError("mcp", "mcp.connect", domain.ErrDisabled, "no MCP dialer configured")
	}
	p := cfg.MCPParam
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultMCPTimeout
	}

	s.mu.Lock()
	session, ok := s.sessions[cfg.ID]
	s.mu.Unlock()

	if !ok {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var err error
		session, err = dialer.Dial(dialCtx, *p)
		if err != nil {
			return nil, classifyMCPError("mcp.Dial", err)
		}
		s.mu.Lock()
		s.sessions[cfg.ID] = session
		s.mu.Unlock()
	}

	listCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tools, err := session.ListTools(listCtx)
	if err != nil {
		return nil, classifyMCPError("mcp.ListTools", err)
	}

	described := make([]domain.ToolDescription, 0, len(tools))
	ids := make([]string, 0, len(tools))
	for _, t := range tools {
		id := mcpToolID(p.ServerName, t.ID)
		reg.RegisterToolExecutor(id, &mcpExecutor{session: session, name: t.ID, timeout: timeout})
		ids = append(ids, id)
		t.ID = id
		described = append(described, t)
	}

	s.mu.Lock()
	s.tools[cfg.ID] = ids
	s.mu.Unlock()
	return described, nil
}

func (s *mcpState) toolIDs(configID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools[configID]
}

func (s *mcpState) close() error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]domain.MCPSession)
	s.mu.Unlock()

	var errs []error
	for id, session := range sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mcp session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func classifyMCPError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewSubSystemError("mcp", op, domain.ErrTimeout, err.Error())
	}
	return domain.NewSubSystemError("mcp", op, domain.ErrProviderError, err.Error())
}

// mcpToolID namespaces a server tool so tools of different servers never
// collide.
func mcpToolID(server, tool string) string {
	if server == "" {
		return tool
	}
	return server + "." + tool
}

type mcpExecutor struct {
	session domain.MCPSession
	name    string
	timeout time.Duration
}

func (e *mcpExecutor) ExecuteTool(ctx context.Context, call domain.ToolCall, _ domain.ToolScope) domain.ToolResult {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.session.CallTool(callCtx, e.name, call.Parameters)
}
