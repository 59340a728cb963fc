// Package llm streams chat completions from OpenAI-compatible providers and
// exposes them as a domain.AIService.
package llm

import "context"

// ChatMessage is one message of a chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is a provider-neutral streamed completion request.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Delta is one increment of a streamed completion. Err is set on the final
// delta of a stream that failed mid-way.
type Delta struct {
	Content string
	Done    bool
	Err     error
}

// Streamer opens streamed chat completions against one backend.
type Streamer interface {
	Name() string
	// ChatStream returns once the response headers arrive. Connection and
	// HTTP status errors are returned directly; later failures arrive as a
	// Delta with Err set.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan Delta, error)
}
