package llm

import (
	"log/slog"
	"strings"
	"time"

	"tidgi-agent/internal/infra/config"
)

// Default Ollama timeouts: short connect (local), long response (model loading).
const (
	ollamaDefaultConnTimeout = 5 * time.Second
	ollamaDefaultRespTimeout = 300 * time.Second
)

// NewOllamaProvider creates a provider for Ollama's OpenAI-compatible /v1
// endpoint. Ollama needs no API key.
func NewOllamaProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = ollamaDefaultConnTimeout
	}
	if cfg.RespTimeout == 0 {
		cfg.RespTimeout = ollamaDefaultRespTimeout
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	return &OpenAIProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		baseURL: baseURL + "/v1",
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}
