package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateAI(cfg, ve)
	validateLLM(cfg, ve)
	validateStore(cfg, ve)
	validateTools(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.MaxRounds <= 0 {
		ve.Add("agent.max_rounds must be > 0")
	}
	if cfg.Agent.MCPTimeout < 0 {
		ve.Add("agent.mcp_timeout must be >= 0")
	}
}

func validateAI(cfg *Config, ve *ValidationError) {
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		ve.Add("ai.temperature must be within [0, 2]")
	}
	if cfg.AI.TopP < 0 || cfg.AI.TopP > 1 {
		ve.Add("ai.top_p must be within [0, 1]")
	}
	if cfg.AI.MaxTokens < 0 {
		ve.Add("ai.max_tokens must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai":     true,
	"openrouter": true,
	"ollama":     true,
	"bedrock":    true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
	if cfg.LLM.RateLimit.RequestsPerSecond < 0 {
		ve.Add("llm.rate_limit.requests_per_second must be >= 0")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, openrouter, ollama, bedrock)", i, p.Type)
		}
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("llm.providers[%d] (%s): base_url %q is not an absolute URL", i, p.Name, p.BaseURL)
			}
		}
		if p.Type == "bedrock" && p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model is required for bedrock", i, p.Name)
		}
		if p.APIKey == "" && p.Type != "ollama" && p.Type != "bedrock" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via TIDGI_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_")))
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	for i, name := range cfg.LLM.Fallbacks {
		if !seen[name] {
			ve.Add("llm.fallbacks[%d]: unknown provider %q", i, name)
		}
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Debounce < 0 {
		ve.Add("store.debounce must be >= 0")
	}
	if cfg.Knowledge.Workers < 0 {
		ve.Add("knowledge.workers must be >= 0")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	rl := cfg.Tools.RateLimit
	if rl.Calls < 0 {
		ve.Add("tools.rate_limit.calls must be >= 0")
	}
	if rl.Calls > 0 && rl.Window <= 0 {
		ve.Add("tools.rate_limit.window must be > 0 when calls is set")
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{"": true, "noop": true, "stdout": true, "otlp": true}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout, otlp)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.Enabled && cfg.Tracer.Exporter == "otlp" && cfg.Tracer.Endpoint == "" {
		ve.Add("tracer.endpoint is required for the otlp exporter")
	}
}
