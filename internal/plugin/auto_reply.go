package plugin

import (
	"context"
	"strings"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

// DefaultAutoReplyMessage is sent when an autoReply config has no message.
const DefaultAutoReplyMessage = "Please continue."

func registerAutoReply(reg *hooks.Registry, deps Deps) error {
	logger := deps.logger().With("plugin", domain.PluginAutoReply)

	reg.PostProcess.Tap(string(domain.PluginAutoReply),
		func(_ context.Context, rc hooks.ResponseContext) (hooks.ResponseContext, hooks.Decision, error) {
			if rc.Config.PluginID != domain.PluginAutoReply {
				return rc, hooks.Decision{}, nil
			}
			p := rc.Config.AutoReplyParam
			if p.MaxReplies > 0 && trailingAutoReplies(rc.History) >= p.MaxReplies {
				logger.Debug("auto reply limit reached", "id", rc.Config.ID, "max", p.MaxReplies)
				return rc, hooks.Decision{}, nil
			}
			if !autoReplyTriggered(p, rc.LLMResponse, deps.random) {
				return rc, hooks.Decision{}, nil
			}
			msg := p.Message
			if strings.TrimSpace(msg) == "" {
				msg = DefaultAutoReplyMessage
			}
			return rc, hooks.Decision{YieldTo: hooks.YieldSelf, NextUserMessage: msg}, nil
		})
	return nil
}

// autoReplyTriggered reports whether any configured trigger fires. Keywords
// match case-insensitively, the filter literally. With no trigger
// configured the plugin never fires.
func autoReplyTriggered(p *domain.AutoReplyParam, response string, random func() float64) bool {
	lower := strings.ToLower(response)
	for _, kw := range p.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	if p.Filter != "" && strings.Contains(response, p.Filter) {
		return true
	}
	return p.Probability > 0 && random() < p.Probability
}

// trailingAutoReplies counts auto-reply user turns since the last human turn.
func trailingAutoReplies(history []*domain.AgentInstanceMessage) int {
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m == nil || m.Role != domain.RoleUser {
			continue
		}
		if !m.MetaBool(domain.MetaAutoReply) {
			break
		}
		n++
	}
	return n
}
