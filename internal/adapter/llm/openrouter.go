package llm

import (
	"log/slog"
	"net/http"
	"strings"

	"tidgi-agent/internal/infra/config"
)

// openrouterTransport injects the OpenRouter attribution headers into every
// request.
type openrouterTransport struct {
	base http.RoundTripper
}

func (t *openrouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("HTTP-Referer", "https://github.com/tiddly-gittly/TidGi-Desktop")
	clone.Header.Set("X-Title", "tidgi-agent")
	return t.base.RoundTrip(clone)
}

// NewOpenRouterProvider creates an OpenAI-compatible provider for the
// OpenRouter API.
func NewOpenRouterProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	client := NewHTTPClient(cfg)
	client.Transport = &openrouterTransport{base: client.Transport}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}

	return &OpenAIProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}
