package plugin

import (
	"context"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

func registerDynamicPosition(reg *hooks.Registry, deps Deps) error {
	logger := deps.logger().With("plugin", domain.PluginDynamicPosition)

	reg.ProcessPrompts.Tap(string(domain.PluginDynamicPosition),
		func(_ context.Context, pc hooks.PromptContext) (hooks.PromptContext, hooks.Decision, error) {
			if pc.Config.PluginID != domain.PluginDynamicPosition {
				return pc, hooks.Decision{}, nil
			}
			placeNode(&pc, pc.Config.DynamicPositionParam.Placement, newNode(pc.Config, pc.Config.Content), logger)
			return pc, hooks.Decision{}, nil
		})
	return nil
}
