package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Agent.MaxRounds != 10 {
		t.Errorf("MaxRounds = %d, want 10", cfg.Agent.MaxRounds)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q, want %q", cfg.LLM.DefaultProvider, "openai")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if cfg.Store.Debounce != 500*time.Millisecond {
		t.Errorf("Store.Debounce = %v", cfg.Store.Debounce)
	}
	if cfg.Tools.RateLimit.Calls != 30 || cfg.Tools.RateLimit.Window != time.Minute {
		t.Errorf("Tools.RateLimit = %+v", cfg.Tools.RateLimit)
	}
	require.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Agent.MaxRounds)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
agent:
  max_rounds: 4
  definition: "wiki-helper"
ai:
  model: "gpt-4o-mini"
  temperature: 0.2
llm:
  default_provider: "local"
  providers:
    - name: "local"
      type: "ollama"
      base_url: "http://localhost:11434/v1"
      model: "llama3"
  rate_limit:
    requests_per_second: 2
    burst: 4
store:
  debounce: 2s
logger:
  level: "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Agent.MaxRounds)
	assert.Equal(t, "wiki-helper", cfg.Agent.Definition)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.InDelta(t, 0.2, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Store.Debounce)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.InDelta(t, 2.0, cfg.LLM.RateLimit.RequestsPerSecond, 1e-9)

	p, ok := cfg.Provider("")
	require.True(t, ok)
	assert.Equal(t, "llama3", p.Model)
	_, ok = cfg.Provider("nope")
	assert.False(t, ok)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "agent: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "agent:\n  max_rounds: 3\n")
	require.NoError(t, os.Chmod(path, 0o666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "agent:\n  max_rounds: 0\n")
	_, err := Load(path)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "agent.max_rounds")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TIDGI_AGENT_MAX_ROUNDS", "3")
	t.Setenv("TIDGI_AI_MODEL", "env-model")
	t.Setenv("TIDGI_LOGGER_LEVEL", "warn")
	t.Setenv("TIDGI_STORE_DEBOUNCE", "0s")
	t.Setenv("TIDGI_TRACER_ENABLED", "true")
	t.Setenv("TIDGI_TOOLS_RATE_LIMIT_CALLS", "0")
	t.Setenv("TIDGI_LLM_PROVIDER_MY_OPENAI_API_KEY", "sk-env")

	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{{Name: "my-openai"}}
	ApplyEnvOverrides(cfg)

	assert.Equal(t, 3, cfg.Agent.MaxRounds)
	assert.Equal(t, "env-model", cfg.AI.Model)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, time.Duration(0), cfg.Store.Debounce)
	assert.True(t, cfg.Tracer.Enabled)
	assert.Zero(t, cfg.Tools.RateLimit.Calls)
	assert.Equal(t, "sk-env", cfg.LLM.Providers[0].APIKey)
}

func TestApplyEnvOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv("TIDGI_AGENT_MAX_ROUNDS", "many")
	t.Setenv("TIDGI_STORE_DEBOUNCE", "soon")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, 10, cfg.Agent.MaxRounds)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.Debounce)
}

func TestEncryptDecryptValue(t *testing.T) {
	enc, err := EncryptValue("sk-secret", "passphrase")
	require.NoError(t, err)
	assert.NotContains(t, enc, "sk-secret")

	got, err := DecryptValue(enc, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", got)

	_, err = DecryptValue(enc, "wrong")
	assert.Error(t, err)

	_, err = DecryptValue("no-separator", "passphrase")
	assert.Error(t, err)
}

func TestLoadDecryptsProviderKeys(t *testing.T) {
	enc, err := EncryptValue("sk-real", "k3y")
	require.NoError(t, err)
	t.Setenv("TIDGI_CONFIG_KEY", "k3y")

	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
llm:
  default_provider: "openai"
  providers:
    - name: "openai"
      api_key: "enc:`+enc+`"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-real", cfg.LLM.Providers[0].APIKey)
}

func TestLoadDecryptWrongKey(t *testing.T) {
	enc, err := EncryptValue("sk-real", "right")
	require.NoError(t, err)
	t.Setenv("TIDGI_CONFIG_KEY", "wrong")

	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
llm:
  providers:
    - name: "openai"
      api_key: "enc:`+enc+`"
`)
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "decrypt secrets"))
}
