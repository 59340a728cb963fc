package plugin

import (
	"context"
	"strings"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

// NoHistoryPlaceholder replaces a history target when the session has no
// usable turns yet.
const NoHistoryPlaceholder = "No previous conversation history."

func registerFullReplacement(reg *hooks.Registry, deps Deps) error {
	logger := deps.logger().With("plugin", domain.PluginFullReplacement)
	counter := deps.tokens()

	reg.ProcessPrompts.Tap(string(domain.PluginFullReplacement),
		func(_ context.Context, pc hooks.PromptContext) (hooks.PromptContext, hooks.Decision, error) {
			if pc.Config.PluginID != domain.PluginFullReplacement {
				return pc, hooks.Decision{}, nil
			}
			p := pc.Config.FullReplacementParam
			if p.SourceType != domain.SourceHistoryOfSession {
				// llmResponse is resolved after the model answers.
				return pc, hooks.Decision{}, nil
			}
			target := domain.FindPromptNode(pc.Prompts, p.TargetID)
			if target == nil {
				logger.Warn("prompt target not found", "id", pc.Config.ID, "target", p.TargetID)
				return pc, hooks.Decision{}, nil
			}

			children := historyNodes(pc.Config.ID, pc.History, p.MaxHistoryTokens, counter)
			if len(children) == 0 {
				target.Children = nil
				target.Text = NoHistoryPlaceholder
				return pc, hooks.Decision{}, nil
			}
			target.Text = ""
			target.Children = children
			return pc, hooks.Decision{}, nil
		})

	reg.PostProcess.Tap(string(domain.PluginFullReplacement),
		func(_ context.Context, rc hooks.ResponseContext) (hooks.ResponseContext, hooks.Decision, error) {
			if rc.Config.PluginID != domain.PluginFullReplacement {
				return rc, hooks.Decision{}, nil
			}
			p := rc.Config.FullReplacementParam
			if p.SourceType != domain.SourceLLMResponse {
				return rc, hooks.Decision{}, nil
			}
			target := domain.FindResponseNode(rc.Responses, p.TargetID)
			if target == nil {
				logger.Warn("response target not found", "id", rc.Config.ID, "target", p.TargetID)
				return rc, hooks.Decision{}, nil
			}
			target.Text = rc.LLMResponse
			target.Children = nil
			return rc, hooks.Decision{}, nil
		})
	return nil
}

// historyNodes converts the conversation into prompt nodes, most recent
// last. Error turns and empty messages are dropped. With a positive budget
// the oldest turns are trimmed, but the latest turn is always kept.
func historyNodes(prefix string, history []*domain.AgentInstanceMessage, budget int, counter TokenCounter) []*domain.PromptNode {
	usable := make([]*domain.AgentInstanceMessage, 0, len(history))
	for _, m := range history {
		if m == nil || m.Role == domain.RoleError || strings.TrimSpace(m.Content) == "" {
			continue
		}
		usable = append(usable, m)
	}

	start := 0
	if budget > 0 && len(usable) > 0 {
		used := 0
		start = len(usable)
		for i := len(usable) - 1; i >= 0; i-- {
			n := counter.Count(usable[i].Content)
			if start < len(usable) && used+n > budget {
				break
			}
			used += n
			start = i
		}
	}

	nodes := make([]*domain.PromptNode, 0, len(usable)-start)
	for _, m := range usable[start:] {
		nodes = append(nodes, &domain.PromptNode{
			ID:   prefix + "-" + m.ID,
			Role: promptRole(m.Role),
			Text: m.Content,
		})
	}
	return nodes
}
