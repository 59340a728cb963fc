package domain

import "time"

// AgentStatus is the transient value the orchestrator yields to its caller.
// Callers switch on State; Message is nil for canceled statuses.
type AgentStatus struct {
	State     AgentState            `json:"state"`
	Message   *AgentInstanceMessage `json:"message,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// Terminal reports whether no further statuses follow this one.
func (s AgentStatus) Terminal() bool {
	return s.State == AgentStateCompleted || s.State == AgentStateCanceled
}

// IsError reports whether the status carries an error turn.
func (s AgentStatus) IsError() bool {
	return s.Message != nil && s.Message.Role == RoleError
}

// ErrorDetail returns the structured error payload, if any.
func (s AgentStatus) ErrorDetail() (ErrorDetail, bool) {
	if s.Message == nil || s.Message.Metadata == nil {
		return ErrorDetail{}, false
	}
	d, ok := s.Message.Metadata[MetaErrorDetail].(ErrorDetail)
	return d, ok
}
