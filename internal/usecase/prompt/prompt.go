// Package prompt turns an agent's prompt template into the flattened
// fragments sent to the LLM.
package prompt

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/tracer"
	"tidgi-agent/internal/usecase/hooks"
)

// Input is everything one concatenation needs.
type Input struct {
	Agent   *domain.AgentInstance
	History []*domain.AgentInstanceMessage
	// Prompts is the definition's template; it is cloned, never modified.
	Prompts []*domain.PromptNode
	// Configs are the plugin configs accepted by the loader, in order.
	Configs []domain.PluginConfig
}

// Result holds the resolved tree and its flattened fragments.
type Result struct {
	Prompts   []*domain.PromptNode
	Fragments []domain.PromptFragment
}

// Concat runs processPrompts and then finalizePrompts once per plugin
// config, in config order, and flattens the resulting tree depth-first.
// The same input always produces the same fragments.
func Concat(ctx context.Context, reg *hooks.Registry, in Input) Result {
	ctx, span := tracer.StartSpan(ctx, "prompt.concat",
		trace.WithAttributes(tracer.IntAttr("plugin.count", len(in.Configs))),
	)
	defer span.End()

	pc := hooks.PromptContext{
		Agent:   in.Agent,
		History: in.History,
		Prompts: domain.ClonePrompts(in.Prompts),
		Meta:    make(map[string]any),
	}

	pc = runStage(ctx, reg.ProcessPrompts, pc, in.Configs)
	pc = runStage(ctx, reg.FinalizePrompts, pc, in.Configs)

	fragments := domain.FlattenPrompts(pc.Prompts)
	span.SetAttributes(tracer.IntAttr("prompt.fragments", len(fragments)))
	tracer.SetOK(span)
	return Result{Prompts: pc.Prompts, Fragments: fragments}
}

func runStage(ctx context.Context, hook *hooks.WaterfallHook[hooks.PromptContext], pc hooks.PromptContext, configs []domain.PluginConfig) hooks.PromptContext {
	if hook.Len() == 0 {
		return pc
	}
	for _, cfg := range configs {
		pc.Config = cfg
		pc, _ = hook.Call(ctx, pc)
	}
	pc.Config = domain.PluginConfig{}
	return pc
}
