package plugin

import (
	"context"
	"strings"
	"sync"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

func registerToolCalling(reg *hooks.Registry, deps Deps) error {
	logger := deps.logger().With("plugin", domain.PluginToolCalling)

	var (
		mu       sync.Mutex
		matchers = make(map[string]*toolMatcher)
	)
	matcherFor := func(cfg domain.PluginConfig) (*toolMatcher, error) {
		mu.Lock()
		defer mu.Unlock()
		if m, ok := matchers[cfg.ID]; ok {
			return m, nil
		}
		if cfg.ToolCallingParam.MatchPattern == "" {
			return defaultMatcher, nil
		}
		m, err := newToolMatcher(cfg.ToolCallingParam.MatchPattern)
		if err != nil {
			return nil, err
		}
		matchers[cfg.ID] = m
		return m, nil
	}

	reg.ProcessPrompts.Tap(string(domain.PluginToolCalling),
		func(_ context.Context, pc hooks.PromptContext) (hooks.PromptContext, hooks.Decision, error) {
			if pc.Config.PluginID != domain.PluginToolCalling || deps.Tools == nil {
				return pc, hooks.Decision{}, nil
			}
			p := pc.Config.ToolCallingParam
			tools := filterTools(deps.Tools.Describe(), p.Tools)
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

	reg.PostProcess.Tap(string(domain.PluginToolCalling),
		func(_ context.Context, rc hooks.ResponseContext) (hooks.ResponseContext, hooks.Decision, error) {
			if rc.Config.PluginID != domain.PluginToolCalling {
				return rc, hooks.Decision{}, nil
			}
			m, err := matcherFor(rc.Config)
			if err != nil {
				return rc, hooks.Decision{}, err
			}
			call, ok := m.find(rc.LLMResponse, allowList(rc.Config.ToolCallingParam.Tools))
			if !ok {
				return rc, hooks.Decision{}, nil
			}
			call.PluginID = rc.Config.ID
			logger.Debug("tool call detected", "id", rc.Config.ID, "tool", call.ToolID)
			return rc, hooks.Decision{YieldTo: hooks.YieldSelf, ToolCall: &call}, nil
		})

	reg.ToolExecuted.Tap(string(domain.PluginToolCalling), appendToolResult(domain.PluginToolCalling))
	return nil
}

// appendToolResult returns a toolExecuted handler recording results for
// calls detected by plugins of kind.
func appendToolResult(kind domain.PluginKind) func(context.Context, hooks.ToolExecutedEvent) error {
	return func(_ context.Context, ev hooks.ToolExecutedEvent) error {
		if ev.Config.PluginID != kind || ev.Agent == nil {
			return nil
		}
		ev.Agent.AppendMessage(toolResultMessage(ev.Call, ev.Result))
		return nil
	}
}

func filterTools(all []domain.ToolDescription, ids []string) []domain.ToolDescription {
	allow := allowList(ids)
	if allow == nil {
		return all
	}
	out := make([]domain.ToolDescription, 0, len(ids))
	for _, t := range all {
		if allow(t.ID) {
			out = append(out, t)
		}
	}
	return out
}
