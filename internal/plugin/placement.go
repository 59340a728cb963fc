package plugin

import (
	"log/slog"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

// placeNode inserts node according to p. A missing target is logged and
// leaves the tree unchanged. An empty TargetID appends to the root list.
func placeNode(pc *hooks.PromptContext, p domain.Placement, node *domain.PromptNode, logger *slog.Logger) bool {
	pos, offset := p.Position, p.Offset
	if p.TargetID == "" && pos != domain.PositionAbsolute {
		pos, offset = domain.PositionAbsolute, -1
	}
	if err := domain.InsertPromptNode(&pc.Prompts, p.TargetID, pos, offset, node); err != nil {
		logger.Warn("prompt target not found, skipping insertion",
			"plugin", pc.Config.PluginID, "id", pc.Config.ID, "target", p.TargetID, "error", err)
		return false
	}
	return true
}

// newNode builds the prompt node a plugin config contributes.
func newNode(cfg domain.PluginConfig, text string) *domain.PromptNode {
	return &domain.PromptNode{ID: cfg.ID, Caption: cfg.Caption, Role: cfg.Role, Text: text}
}

// latestUserMessage returns the content of the most recent user turn.
func latestUserMessage(history []*domain.AgentInstanceMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] != nil && history[i].Role == domain.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// promptRole maps a message role to the role understood by the model.
func promptRole(role string) string {
	switch role {
	case domain.RoleAgent:
		return domain.PromptRoleAssistant
	default:
		return domain.PromptRoleUser
	}
}
