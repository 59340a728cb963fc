package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Tool.Execute", ErrToolNotFound, "tool 'foo'")
	want := "Tool.Execute: tool 'foo': tool not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Handler.Run", ErrMaxRounds, "")
	want := "Handler.Run: agent reached max rounds"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Handler.Run", ErrRequestCanceled, "req-1")
	if !errors.Is(err, ErrRequestCanceled) {
		t.Error("errors.Is should match ErrRequestCanceled")
	}
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestErrorCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("stream: %w", ErrRateLimit)
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(err))
}

func TestErrorCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("custom")))
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	require.NotEmpty(t, errorCodeMap)
	for sentinel, code := range errorCodeMap {
		assert.NotEmpty(t, code, "sentinel %v has empty code", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
}

func TestNewSubSystemError_Format(t *testing.T) {
	err := NewSubSystemError("plugin", "Load", ErrNotFound, "p-1")
	assert.Equal(t, "Load: p-1: not found", err.Error())
	assert.Equal(t, "plugin", err.SubSystem)
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	tests := []struct {
		subsystem string
		sentinel  error
		want      ErrorCode
	}{
		{"plugin", ErrNotFound, CodePluginNotFound},
		{"plugin", ErrInvalidInput, CodePluginInvalid},
		{"prompt", ErrNotFound, CodePromptTarget},
		{"mcp", ErrTimeout, CodeMCPTimeout},
		{"mcp", ErrProviderError, CodeMCPUnavailable},
		{"tool", ErrInvalidInput, CodeToolParamInvalid},
		{"unknown", ErrNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.subsystem+"/"+string(tt.want), func(t *testing.T) {
			err := NewSubSystemError(tt.subsystem, "Op", tt.sentinel, "")
			assert.Equal(t, tt.want, ErrorCodeOf(err))
		})
	}
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))

	inner := WrapOp("inner", ErrToolFailure)
	outer := WrapOp("outer", inner)
	assert.Equal(t, "outer: inner: tool execution failed", outer.Error())
	assert.True(t, errors.Is(outer, ErrToolFailure))
	assert.Equal(t, CodeToolFailure, ErrorCodeOf(outer))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(ErrRateLimit))
	assert.True(t, IsRetryableError(fmt.Errorf("call: %w", ErrServerFailure)))
	assert.True(t, IsRetryableError(NewDomainError("LLM", ErrCircuitOpen, "")))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
	assert.False(t, IsRetryableError(ErrContextOverflow))
	assert.False(t, IsRetryableError(nil))
}

func TestErrorDetailOf(t *testing.T) {
	d := ErrorDetailOf(fmt.Errorf("openai: %w", ErrAuthInvalid), "openai")
	assert.Equal(t, "AuthenticationError", d.Name)
	assert.Equal(t, CodeAuthInvalid, d.Code)
	assert.Equal(t, "openai", d.Provider)
	assert.Equal(t, "openai: authentication failed", d.Message)

	d = ErrorDetailOf(errors.New("boom"), "")
	assert.Equal(t, "Error", d.Name)
	assert.Equal(t, CodeUnknown, d.Code)
}
