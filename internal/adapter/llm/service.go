package llm

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/config"
	"tidgi-agent/internal/infra/tracer"
)

var _ domain.AIService = (*Service)(nil)

// ServiceConfig selects providers for requests that do not name one.
type ServiceConfig struct {
	DefaultProvider string
	Fallbacks       []string
	// Defaults is returned by GetAIConfig.
	Defaults domain.AIConfig
}

// Service implements domain.AIService on top of a provider registry.
// Each request runs in its own goroutine and can be canceled by id.
type Service struct {
	registry *Registry
	cfg      ServiceConfig
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc

	requests metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewService creates a service over registry.
func NewService(registry *Registry, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Defaults.Provider == "" {
		cfg.Defaults.Provider = cfg.DefaultProvider
	}

	meter := tracer.Meter()
	requests, _ := meter.Int64Counter("llm.requests", metric.WithDescription("Streamed completion requests"))
	failures, _ := meter.Int64Counter("llm.failures", metric.WithDescription("Streamed completion requests that ended in error"))
	latency, _ := meter.Float64Histogram("llm.duration", metric.WithUnit("s"))

	return &Service{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[string]context.CancelFunc),
		requests: requests,
		failures: failures,
		latency:  latency,
	}
}

// NewFromConfig builds the registry from the configured providers and wraps
// each one with rate limiting and the circuit breaker as configured.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	reg := NewRegistry()
	for _, p := range cfg.LLM.Providers {
		var s Streamer
		switch p.Type {
		case "", "openai":
			s = NewOpenAIProvider(p, logger)
		case "openrouter":
			s = NewOpenRouterProvider(p, logger)
		case "ollama":
			s = NewOllamaProvider(p, logger)
		case "bedrock":
			b, err := NewBedrockProvider(context.Background(), p, logger)
			if err != nil {
				return nil, fmt.Errorf("llm provider %q: %w", p.Name, err)
			}
			s = b
		default:
			return nil, fmt.Errorf("llm provider %q: unsupported type %q", p.Name, p.Type)
		}
		s = NewRateLimitedStreamer(s, cfg.LLM.RateLimit)
		if cfg.LLM.CircuitBreaker.Enabled {
			s = NewCircuitBreakerStreamer(s, cfg.LLM.CircuitBreaker, logger)
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}

	return NewService(reg, ServiceConfig{
		DefaultProvider: cfg.LLM.DefaultProvider,
		Fallbacks:       cfg.LLM.Fallbacks,
		Defaults:        cfg.AI,
	}, logger), nil
}

// GetAIConfig implements domain.AIService.
func (s *Service) GetAIConfig() domain.AIConfig {
	out := s.cfg.Defaults
	out.Extra = maps.Clone(out.Extra)
	return out
}

// CancelAIRequest implements domain.AIService.
func (s *Service) CancelAIRequest(requestID string) {
	s.mu.Lock()
	cancel, ok := s.inflight[requestID]
	delete(s.inflight, requestID)
	s.mu.Unlock()

	if ok {
		s.logger.Debug("llm request canceled", "request_id", requestID)
		cancel()
	}
}

// Inflight returns the number of requests still streaming.
func (s *Service) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// GenerateFromAI implements domain.AIService. Chunks carry the accumulated
// text. The channel closes after a done or error chunk, or silently once the
// request is canceled.
func (s *Service) GenerateFromAI(ctx context.Context, prompts []domain.PromptFragment, cfg domain.AIConfig) <-chan domain.AIStreamChunk {
	requestID := uuid.NewString()
	ctx, cancel := context.WithCancel(domain.ContextWithRequestID(ctx, requestID))

	s.mu.Lock()
	s.inflight[requestID] = cancel
	s.mu.Unlock()

	out := make(chan domain.AIStreamChunk, 16)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.inflight, requestID)
			s.mu.Unlock()
			cancel()
		}()
		s.stream(ctx, requestID, prompts, cfg, out)
	}()
	return out
}

func (s *Service) stream(ctx context.Context, requestID string, prompts []domain.PromptFragment, cfg domain.AIConfig, out chan<- domain.AIStreamChunk) {
	provider := cfg.Provider
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}

	ctx, span := tracer.StartSpan(ctx, "llm.generate", trace.WithAttributes(
		tracer.StringAttr("llm.provider", provider),
		tracer.StringAttr("llm.model", cfg.Model),
		tracer.StringAttr("llm.request_id", requestID),
	))
	defer span.End()

	started := time.Now()
	attrs := metric.WithAttributes(tracer.StringAttr("provider", provider))
	s.requests.Add(ctx, 1, attrs)
	defer func() { s.latency.Record(ctx, time.Since(started).Seconds(), attrs) }()

	send := func(c domain.AIStreamChunk) bool {
		c.RequestID = requestID
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		tracer.RecordError(span, err)
		s.failures.Add(ctx, 1, attrs)
		s.logger.WarnContext(ctx, "llm request failed", "provider", provider, "error", err)
		detail := domain.ErrorDetailOf(err, provider)
		send(domain.AIStreamChunk{Status: domain.StreamError, Content: detail.Message, ErrorDetail: &detail})
	}

	if !send(domain.AIStreamChunk{Status: domain.StreamStart}) {
		return
	}

	streamer, err := s.resolve(provider)
	if err != nil {
		fail(err)
		return
	}
	deltas, err := streamer.ChatStream(ctx, BuildChatRequest(prompts, cfg))
	if err != nil {
		fail(err)
		return
	}

	var acc strings.Builder
	for d := range deltas {
		if d.Err != nil {
			fail(d.Err)
			return
		}
		if d.Content != "" {
			acc.WriteString(d.Content)
			if !send(domain.AIStreamChunk{Status: domain.StreamUpdate, Content: acc.String()}) {
				return
			}
		}
		if d.Done {
			tracer.SetOK(span)
			send(domain.AIStreamChunk{Status: domain.StreamDone, Content: acc.String()})
			return
		}
	}
	if ctx.Err() == nil {
		fail(fmt.Errorf("%w: stream closed without completion", domain.ErrProviderError))
	}
}

// resolve returns the streamer for provider, wrapped with the configured
// fallbacks.
func (s *Service) resolve(provider string) (Streamer, error) {
	primary, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	var fallbacks []Streamer
	for _, name := range s.cfg.Fallbacks {
		if name == provider {
			continue
		}
		fb, err := s.registry.Get(name)
		if err != nil {
			s.logger.Warn("skipping unknown fallback provider", "provider", name)
			continue
		}
		fallbacks = append(fallbacks, fb)
	}
	if len(fallbacks) == 0 {
		return primary, nil
	}
	return NewFailoverStreamer(primary, fallbacks, s.logger), nil
}

// BuildChatRequest converts resolved prompt fragments into a chat request.
// The configured system prompt, if any, goes first; empty fragments are
// dropped and adjacent fragments with the same role are joined.
func BuildChatRequest(prompts []domain.PromptFragment, cfg domain.AIConfig) ChatRequest {
	req := ChatRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
		Messages:    make([]ChatMessage, 0, len(prompts)+1),
	}
	if sp := strings.TrimSpace(cfg.SystemPrompt); sp != "" {
		req.Messages = append(req.Messages, ChatMessage{Role: domain.PromptRoleSystem, Content: sp})
	}
	for _, f := range prompts {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		role := f.Role
		if role == "" {
			role = domain.PromptRoleSystem
		}
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == role {
			req.Messages[n-1].Content += "\n\n" + text
			continue
		}
		req.Messages = append(req.Messages, ChatMessage{Role: role, Content: text})
	}
	return req
}
