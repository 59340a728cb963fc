package hooks

import "tidgi-agent/internal/domain"

// UserMessageEvent is passed to userMessageReceived handlers.
type UserMessageEvent struct {
	Agent   *domain.AgentInstance
	Message *domain.AgentInstanceMessage
}

// StatusEvent is passed to agentStatusChanged handlers.
type StatusEvent struct {
	Agent  *domain.AgentInstance
	Status domain.AgentStatus
}

// ResponseEvent is passed to responseUpdate and responseComplete handlers.
type ResponseEvent struct {
	Agent     *domain.AgentInstance
	Message   *domain.AgentInstanceMessage
	RequestID string
}

// ToolExecutedEvent is passed to toolExecuted handlers. Config is the plugin
// config that detected the call; handlers append result messages to Agent.
type ToolExecutedEvent struct {
	Agent  *domain.AgentInstance
	Config domain.PluginConfig
	Call   domain.ToolCall
	Result domain.ToolResult
}

// PromptContext flows through processPrompts and finalizePrompts.
type PromptContext struct {
	Agent   *domain.AgentInstance
	History []*domain.AgentInstanceMessage
	Prompts []*domain.PromptNode
	Config  domain.PluginConfig
	Meta    map[string]any
}

// Clone copies the prompt tree and metadata so a failing handler cannot
// leave partial edits behind.
func (c PromptContext) Clone() PromptContext {
	cp := c
	cp.Prompts = domain.ClonePrompts(c.Prompts)
	cp.Meta = cloneMeta(c.Meta)
	return cp
}

// ResponseContext flows through postProcess.
type ResponseContext struct {
	Agent       *domain.AgentInstance
	History     []*domain.AgentInstanceMessage
	LLMResponse string
	Responses   []*domain.ResponseNode
	Config      domain.PluginConfig
	Meta        map[string]any
}

// Clone copies the response tree and metadata.
func (c ResponseContext) Clone() ResponseContext {
	cp := c
	cp.Responses = domain.CloneResponses(c.Responses)
	cp.Meta = cloneMeta(c.Meta)
	return cp
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
