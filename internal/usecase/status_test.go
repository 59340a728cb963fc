package usecase

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidgi-agent/internal/domain"
)

func TestWorkingStatusSnapshots(t *testing.T) {
	msg := domain.NewMessage(domain.RoleAgent, "draft")
	msg.SetMeta(domain.MetaRequestID, "r1")

	st := WorkingStatus(msg, "r1")
	msg.Content = "changed"
	msg.SetMeta(domain.MetaRequestID, "r2")

	assert.Equal(t, domain.AgentStateWorking, st.State)
	assert.Equal(t, "draft", st.Message.Content)
	assert.Equal(t, "r1", st.Message.Metadata[domain.MetaRequestID])
	assert.Equal(t, "r1", st.RequestID)
	assert.False(t, st.Terminal())
	assert.False(t, st.Timestamp.IsZero())
}

func TestCompletedAndCanceledStatus(t *testing.T) {
	done := CompletedStatus(domain.NewMessage(domain.RoleAgent, "ok"), "r1")
	assert.True(t, done.Terminal())
	assert.False(t, done.IsError())

	canceled := CanceledStatus()
	assert.True(t, canceled.Terminal())
	assert.Nil(t, canceled.Message)
	assert.Equal(t, domain.AgentStateCanceled, canceled.State)
}

func TestNewErrorMessage(t *testing.T) {
	detail := domain.ErrorDetail{Name: "ProviderError", Code: domain.CodeProviderError, Provider: "openai", Message: "Invalid prompt"}
	msg := NewErrorMessage(detail)

	assert.Equal(t, domain.RoleError, msg.Role)
	assert.Equal(t, "Error: Invalid prompt", msg.Content)

	st := ErrorStatus(msg, "r1")
	assert.Equal(t, domain.AgentStateCompleted, st.State)
	assert.True(t, st.IsError())
	got, ok := st.ErrorDetail()
	require.True(t, ok)
	assert.Equal(t, detail, got)
}

func TestNewUnexpectedErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		cause any
		code  domain.ErrorCode
	}{
		{"error value", domain.WrapOp("op", domain.ErrTimeout), domain.CodeTimeout},
		{"plain error", errors.New("nil map write"), domain.CodeUnknown},
		{"panic string", "index out of range", domain.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewUnexpectedErrorMessage(tt.cause, "ollama")
			if !strings.HasPrefix(msg.Content, "Unexpected error: ") {
				t.Errorf("content = %q", msg.Content)
			}
			detail, _ := msg.Metadata[domain.MetaErrorDetail].(domain.ErrorDetail)
			if detail.Code != tt.code {
				t.Errorf("code = %s, want %s", detail.Code, tt.code)
			}
			if detail.Provider != "ollama" {
				t.Errorf("provider = %q", detail.Provider)
			}
		})
	}
}

func TestNewMaxRoundsMessage(t *testing.T) {
	msg := NewMaxRoundsMessage(4, "openai")

	assert.Equal(t, domain.RoleError, msg.Role)
	assert.Contains(t, msg.Content, "4 consecutive rounds")
	detail, _ := msg.Metadata[domain.MetaErrorDetail].(domain.ErrorDetail)
	assert.Equal(t, domain.CodeMaxRounds, detail.Code)
}

func TestNewNoticeMessage(t *testing.T) {
	msg := NewNoticeMessage(NoUserMessageText)
	assert.Equal(t, domain.RoleAgent, msg.Role)
	assert.Empty(t, msg.AgentID, "notice is not attached to an agent")
}
