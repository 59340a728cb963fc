package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentStatusChanged EventType = "agent.status.changed"
	EventAgentError         EventType = "agent.error"
	EventMessageReceived    EventType = "message.received"
	EventMessageUpdated     EventType = "message.updated"
	EventLLMCallStarted     EventType = "llm.call.started"
	EventLLMCallCompleted   EventType = "llm.call.completed"
	EventToolCallStarted    EventType = "tool.call.started"
	EventToolCallCompleted  EventType = "tool.call.completed"
	EventPluginLoaded       EventType = "plugin.loaded"
	EventPluginSkipped      EventType = "plugin.skipped"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// StatusChangedPayload is the payload of EventAgentStatusChanged.
type StatusChangedPayload struct {
	State     AgentState `json:"state"`
	MessageID string     `json:"message_id,omitempty"`
	Role      string     `json:"role,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}

// ToolCallPayload is the payload of the tool call events.
type ToolCallPayload struct {
	ToolID   string `json:"tool_id"`
	PluginID string `json:"plugin_id,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// NewEvent builds an event with a JSON-encoded payload. Marshal failures
// leave the payload empty.
func NewEvent(typ EventType, agentID string, payload any) Event {
	ev := Event{Type: typ, Timestamp: time.Now(), AgentID: agentID}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			ev.Payload = b
		}
	}
	return ev
}
