// Package response post-processes a finished LLM answer through the
// plugin chain and renders the response template.
package response

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/tracer"
	"tidgi-agent/internal/usecase/hooks"
)

// Input is everything one response pass needs.
type Input struct {
	Agent       *domain.AgentInstance
	History     []*domain.AgentInstanceMessage
	LLMResponse string
	// Template is the definition's response tree; it is cloned, never modified.
	Template []*domain.ResponseNode
	Configs  []domain.PluginConfig
}

// Result is the rendered text plus the merged control-flow decision.
type Result struct {
	Text      string
	Responses []*domain.ResponseNode
	Decision  hooks.Decision
}

// Process runs postProcess once per plugin config and renders the enabled
// leaves of the resulting tree. An empty rendering falls back to the raw
// LLM text.
func Process(ctx context.Context, reg *hooks.Registry, in Input) Result {
	ctx, span := tracer.StartSpan(ctx, "response.process",
		trace.WithAttributes(tracer.IntAttr("plugin.count", len(in.Configs))),
	)
	defer span.End()

	rc := hooks.ResponseContext{
		Agent:       in.Agent,
		History:     in.History,
		LLMResponse: in.LLMResponse,
		Responses:   domain.CloneResponses(in.Template),
		Meta:        make(map[string]any),
	}

	var decision hooks.Decision
	if reg.PostProcess.Len() > 0 {
		for _, cfg := range in.Configs {
			rc.Config = cfg
			var d hooks.Decision
			rc, d = reg.PostProcess.Call(ctx, rc)
			decision = decision.Merge(d)
		}
	}

	text := domain.RenderResponses(rc.Responses)
	if text == "" {
		text = in.LLMResponse
	}

	span.SetAttributes(
		tracer.StringAttr("response.yield_to", string(decision.Target())),
		tracer.BoolAttr("response.tool_call", decision.ToolCall != nil),
	)
	tracer.SetOK(span)
	return Result{Text: text, Responses: rc.Responses, Decision: decision}
}
