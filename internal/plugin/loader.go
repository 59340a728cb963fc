package plugin

import (
	"context"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

// Load instantiates the configured plugins on reg, in config order, and
// returns the configs that were accepted. Invalid configs, unknown kinds and
// kinds whose factory fails are logged and skipped.
func Load(ctx context.Context, reg *hooks.Registry, configs []domain.PluginConfig, deps Deps) []domain.PluginConfig {
	RegisterBuiltins()
	logger := deps.logger()

	failed := make(map[domain.PluginKind]bool)
	accepted := make([]domain.PluginConfig, 0, len(configs))

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			logger.Warn("skipping plugin", "id", cfg.ID, "plugin", cfg.PluginID, "error", err)
			publish(ctx, deps.Bus, domain.EventPluginSkipped, cfg, err)
			continue
		}
		if failed[cfg.PluginID] {
			continue
		}

		if !reg.HasKind(cfg.PluginID) {
			f, ok := Lookup(cfg.PluginID)
			if !ok {
				err := domain.NewSubSystemError("plugin", "plugin.Load", domain.ErrNotFound, string(cfg.PluginID))
				logger.Warn("skipping plugin", "id", cfg.ID, "plugin", cfg.PluginID, "error", err)
				publish(ctx, deps.Bus, domain.EventPluginSkipped, cfg, err)
				continue
			}
			reg.MarkKind(cfg.PluginID)
			if err := f(reg, deps); err != nil {
				failed[cfg.PluginID] = true
				logger.Warn("plugin registration failed", "plugin", cfg.PluginID, "error", err)
				publish(ctx, deps.Bus, domain.EventPluginSkipped, cfg, err)
				continue
			}
		}

		accepted = append(accepted, cfg)
		logger.Debug("plugin loaded", "id", cfg.ID, "plugin", cfg.PluginID)
		publish(ctx, deps.Bus, domain.EventPluginLoaded, cfg, nil)
	}
	return accepted
}

func publish(ctx context.Context, bus domain.EventBus, typ domain.EventType, cfg domain.PluginConfig, err error) {
	if bus == nil {
		return
	}
	payload := map[string]string{"id": cfg.ID, "plugin": string(cfg.PluginID)}
	if err != nil {
		payload["error"] = err.Error()
	}
	bus.Publish(ctx, domain.NewEvent(typ, domain.AgentIDFromContext(ctx), payload))
}
