package domain

import "context"

// AIConfig selects and tunes the LLM backend. Zero values mean "unset" so
// layered configs can be merged field by field.
type AIConfig struct {
	Provider     string            `json:"provider,omitempty"      yaml:"provider,omitempty"`
	Model        string            `json:"model,omitempty"         yaml:"model,omitempty"`
	Temperature  float64           `json:"temperature,omitempty"   yaml:"temperature,omitempty"`
	TopP         float64           `json:"top_p,omitempty"         yaml:"top_p,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"    yaml:"max_tokens,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"         yaml:"extra,omitempty"`
}

// PromptFragment is one resolved, flattened prompt piece handed to the LLM.
type PromptFragment struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// StreamStatus is the kind of a streamed AI chunk.
type StreamStatus string

const (
	StreamStart  StreamStatus = "start"
	StreamUpdate StreamStatus = "update"
	StreamDone   StreamStatus = "done"
	StreamError  StreamStatus = "error"
)

// AIStreamChunk is a single element of an AI response stream. Content is
// the accumulated text so far, not a delta.
type AIStreamChunk struct {
	RequestID   string       `json:"request_id"`
	Status      StreamStatus `json:"status"`
	Content     string       `json:"content"`
	ErrorDetail *ErrorDetail `json:"error_detail,omitempty"`
}

// AIService is the LLM streaming collaborator.
type AIService interface {
	// GenerateFromAI starts a streamed completion. The channel is closed after
	// a done or error chunk, or when the request is canceled.
	GenerateFromAI(ctx context.Context, prompts []PromptFragment, cfg AIConfig) <-chan AIStreamChunk
	// CancelAIRequest aborts an in-flight request. Unknown ids are ignored.
	CancelAIRequest(requestID string)
	// GetAIConfig returns the process-wide default configuration.
	GetAIConfig() AIConfig
}
