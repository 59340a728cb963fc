package domain

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role constants for agent instance messages.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
	RoleTool  = "tool"
	RoleError = "error"
)

// Well-known metadata keys carried on messages.
const (
	MetaProcessed    = "processed"
	MetaIsToolResult = "isToolResult"
	MetaToolID       = "toolId"
	MetaAutoReply    = "autoReply"
	MetaErrorDetail  = "errorDetail"
	MetaRequestID    = "requestId"
)

// AgentInstanceMessage is one conversation turn.
type AgentInstanceMessage struct {
	ID       string         `json:"id"`
	AgentID  string         `json:"agent_id"`
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Modified time.Time      `json:"modified"`
	Duration *int           `json:"duration,omitempty"`
}

// NewMessage creates a message with a fresh ULID.
func NewMessage(role, content string) *AgentInstanceMessage {
	return &AgentInstanceMessage{
		ID:       NewID(),
		Role:     role,
		Content:  content,
		Modified: time.Now(),
	}
}

// SetMeta sets a metadata key, allocating the map on first use.
func (m *AgentInstanceMessage) SetMeta(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// MetaBool reports a boolean metadata flag. Missing or non-bool values are false.
func (m *AgentInstanceMessage) MetaBool(key string) bool {
	if m == nil || m.Metadata == nil {
		return false
	}
	v, _ := m.Metadata[key].(bool)
	return v
}

// Processed reports whether the orchestrator already consumed this message.
func (m *AgentInstanceMessage) Processed() bool {
	return m.MetaBool(MetaProcessed)
}

// Clone returns a copy with its own metadata map.
func (m *AgentInstanceMessage) Clone() AgentInstanceMessage {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	if m.Duration != nil {
		d := *m.Duration
		cp.Duration = &d
	}
	return cp
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a new monotonic ULID string.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
