package domain

import (
	"context"
	"time"
)

// AgentDefinition is the read-only configuration an agent instance runs with.
// The core never mutates a definition during a round.
type AgentDefinition struct {
	ID            string        `json:"id"             yaml:"id"`
	Name          string        `json:"name"           yaml:"name"`
	Description   string        `json:"description"    yaml:"description"`
	AIAPIConfig   AIConfig      `json:"ai_api_config"  yaml:"ai_api_config"`
	HandlerConfig HandlerConfig `json:"handler_config" yaml:"handler_config"`
}

// HandlerConfig holds the prompt and response templates plus the ordered
// plugin list applied to them.
type HandlerConfig struct {
	Prompts  []*PromptNode   `json:"prompts"  yaml:"prompts"`
	Response []*ResponseNode `json:"response" yaml:"response"`
	Plugins  []PluginConfig  `json:"plugins"  yaml:"plugins"`
}

// AgentState is the lifecycle state of an agent instance.
type AgentState string

const (
	AgentStateIdle      AgentState = "idle"
	AgentStateWorking   AgentState = "working"
	AgentStateCompleted AgentState = "completed"
	AgentStateCanceled  AgentState = "canceled"
)

// AgentInstanceStatus is the persisted status of an instance.
type AgentInstanceStatus struct {
	State    AgentState `json:"state"`
	Modified time.Time  `json:"modified"`
}

// AgentInstance is a running conversation.
//
// Messages are append-only during a round; only the orchestrator and hook
// handlers invoked from its call stack touch them.
type AgentInstance struct {
	ID           string                  `json:"id"`
	DefinitionID string                  `json:"definition_id"`
	Name         string                  `json:"name,omitempty"`
	Messages     []*AgentInstanceMessage `json:"messages"`
	Status       AgentInstanceStatus     `json:"status"`
	AIAPIConfig  AIConfig                `json:"ai_api_config"`
	CreatedAt    time.Time               `json:"created_at"`
}

// NewAgentInstance creates an idle instance bound to the given definition.
func NewAgentInstance(def *AgentDefinition) *AgentInstance {
	now := time.Now()
	return &AgentInstance{
		ID:           NewID(),
		DefinitionID: def.ID,
		Name:         def.Name,
		Messages:     make([]*AgentInstanceMessage, 0),
		Status:       AgentInstanceStatus{State: AgentStateIdle, Modified: now},
		CreatedAt:    now,
	}
}

// LatestMessage returns the last message or nil when the history is empty.
func (a *AgentInstance) LatestMessage() *AgentInstanceMessage {
	if len(a.Messages) == 0 {
		return nil
	}
	return a.Messages[len(a.Messages)-1]
}

// AppendMessage adds msg to the history, stamping the owner and timestamp.
func (a *AgentInstance) AppendMessage(msg *AgentInstanceMessage) {
	msg.AgentID = a.ID
	if msg.Modified.IsZero() {
		msg.Modified = time.Now()
	}
	a.Messages = append(a.Messages, msg)
}

// History returns a shallow copy of the message slice.
func (a *AgentInstance) History() []*AgentInstanceMessage {
	cp := make([]*AgentInstanceMessage, len(a.Messages))
	copy(cp, a.Messages)
	return cp
}

// SetState records a status transition.
func (a *AgentInstance) SetState(state AgentState) {
	a.Status = AgentInstanceStatus{State: state, Modified: time.Now()}
}

// MessagePersister receives best-effort message upsert notifications.
// Implementations must not block the caller for I/O.
type MessagePersister interface {
	DebounceUpdateMessage(msg AgentInstanceMessage, agentID string)
}

// Retriever returns passages relevant to a query. It backs retrieval
// augmented generation and wiki search.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]Passage, error)
}

// RetrieveOptions narrows a retrieval query.
type RetrieveOptions struct {
	Limit     int
	Workspace string
}

// Passage is a single retrieved document fragment.
type Passage struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Workspace string  `json:"workspace,omitempty"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}
