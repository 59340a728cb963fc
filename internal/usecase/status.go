package usecase

import (
	"fmt"
	"time"

	"tidgi-agent/internal/domain"
)

// Messages used for rounds that end without an AI answer.
const (
	NoUserMessageText = "No new user message to respond to."
	maxRoundsText     = "Error: the agent stopped after %d consecutive rounds without handing control back. " +
		"Send a new message to continue."
)

// snapshot copies msg so later in-place updates are not visible to callers
// that already received a status.
func snapshot(msg *domain.AgentInstanceMessage) *domain.AgentInstanceMessage {
	if msg == nil {
		return nil
	}
	cp := msg.Clone()
	return &cp
}

// WorkingStatus reports progress with the content produced so far.
func WorkingStatus(msg *domain.AgentInstanceMessage, requestID string) domain.AgentStatus {
	return domain.AgentStatus{
		State:     domain.AgentStateWorking,
		Message:   snapshot(msg),
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// CompletedStatus is the terminal status of a round that handed control back.
func CompletedStatus(msg *domain.AgentInstanceMessage, requestID string) domain.AgentStatus {
	return domain.AgentStatus{
		State:     domain.AgentStateCompleted,
		Message:   snapshot(msg),
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// CanceledStatus carries no payload.
func CanceledStatus() domain.AgentStatus {
	return domain.AgentStatus{State: domain.AgentStateCanceled, Timestamp: time.Now()}
}

// ErrorStatus is a completed status whose message is an error turn.
func ErrorStatus(msg *domain.AgentInstanceMessage, requestID string) domain.AgentStatus {
	return CompletedStatus(msg, requestID)
}

// NewErrorMessage builds an error turn: role error, "Error: " content and the
// structured detail in metadata.
func NewErrorMessage(detail domain.ErrorDetail) *domain.AgentInstanceMessage {
	msg := domain.NewMessage(domain.RoleError, "Error: "+detail.Message)
	msg.SetMeta(domain.MetaErrorDetail, detail)
	return msg
}

// NewUnexpectedErrorMessage builds the error turn for a failure caught at the
// orchestrator boundary.
func NewUnexpectedErrorMessage(cause any, provider string) *domain.AgentInstanceMessage {
	text := fmt.Sprint(cause)
	detail := domain.ErrorDetail{Name: "Error", Code: domain.CodeUnknown, Provider: provider, Message: text}
	if err, ok := cause.(error); ok {
		detail = domain.ErrorDetailOf(err, provider)
	}
	msg := domain.NewMessage(domain.RoleError, "Unexpected error: "+text)
	msg.SetMeta(domain.MetaErrorDetail, detail)
	return msg
}

// NewMaxRoundsMessage builds the error turn for an exhausted round budget.
func NewMaxRoundsMessage(limit int, provider string) *domain.AgentInstanceMessage {
	msg := domain.NewMessage(domain.RoleError, fmt.Sprintf(maxRoundsText, limit))
	msg.SetMeta(domain.MetaErrorDetail, domain.ErrorDetailOf(domain.ErrMaxRounds, provider))
	return msg
}

// NewNoticeMessage builds an agent turn that is reported but not stored.
func NewNoticeMessage(text string) *domain.AgentInstanceMessage {
	return domain.NewMessage(domain.RoleAgent, text)
}
