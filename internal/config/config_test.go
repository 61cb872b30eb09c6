package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcb-cost/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pcb-cost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ProviderNone, cfg.LLM.ProviderName())
	assert.False(t, cfg.Enrichment.Enabled)
	assert.Equal(t, 0.75, cfg.Enrichment.ConfidenceThreshold)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.Retry.Backoff)
	assert.Equal(t, 30*24*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, 1, cfg.Pricing.BoardQuantity)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: anthropic
  requests_per_minute: 30
  timeout: 10s
enrichment:
  enabled: true
  obsolescence: false
  confidence_threshold: 0.6
cache:
  ttl_days: 7
pricing:
  board_quantity: 50
prompts:
  versions:
    price_reasonableness: v2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, DefaultAnthropicModel, cfg.LLM.ModelName())
	assert.Equal(t, 30, cfg.LLM.RequestsPerMinute)
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens, "unset values keep defaults")
	assert.True(t, cfg.Enrichment.Enabled)
	assert.True(t, cfg.Enrichment.PriceCheck)
	assert.False(t, cfg.Enrichment.Obsolescence)
	assert.Equal(t, 0.6, cfg.Enrichment.ConfidenceThreshold)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, 50, cfg.Pricing.BoardQuantity)
	assert.Equal(t, "v2", cfg.Prompts.PromptVersion("price_reasonableness"))
	assert.Equal(t, "v1", cfg.Prompts.PromptVersion("component_classification"))
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PCB_COST_PROVIDER", "openai")
	t.Setenv("PCB_COST_MODEL", "gpt-4o")
	t.Setenv("PCB_COST_API_KEY", "sk-from-env")

	path := writeConfig(t, "llm:\n  provider: anthropic\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.ModelName())
	assert.Equal(t, "sk-from-env", cfg.LLM.ResolveAPIKey())
	assert.True(t, cfg.LLM.HasCredentials())
}

func TestAPIKeyNeverReadFromFile(t *testing.T) {
	t.Setenv("PCB_COST_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	path := writeConfig(t, "llm:\n  provider: openai\n  api_key: sk-in-file\n  apikey: sk-in-file\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Empty(t, cfg.LLM.APIKey)
	assert.False(t, cfg.LLM.HasCredentials())
}

func TestResolveAPIKeyFallsBackToProviderVariable(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	c := LLMConfig{Provider: ProviderAnthropic}
	assert.Equal(t, "sk-ant", c.ResolveAPIKey())
	assert.True(t, c.HasCredentials())

	mock := LLMConfig{Provider: ProviderMock}
	assert.True(t, mock.HasCredentials())

	none := LLMConfig{}
	assert.False(t, none.HasCredentials())
	assert.Empty(t, none.ModelName())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}

func TestValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"unknown provider":    func(c *Config) { c.LLM.Provider = "acme" },
		"temperature":         func(c *Config) { c.LLM.Temperature = 3 },
		"max tokens":          func(c *Config) { c.LLM.MaxTokens = 0 },
		"requests per minute": func(c *Config) { c.LLM.RequestsPerMinute = 0 },
		"max concurrent":      func(c *Config) { c.LLM.MaxConcurrent = -1 },
		"threshold":           func(c *Config) { c.Enrichment.ConfidenceThreshold = 1.5 },
		"negative timeout":    func(c *Config) { c.Enrichment.Timeout = -time.Second },
		"negative retries":    func(c *Config) { c.Retry.MaxRetries = -1 },
		"negative backoff":    func(c *Config) { c.Retry.Backoff = []time.Duration{-time.Second} },
		"ttl":                 func(c *Config) { c.Cache.TTLDays = 0 },
		"board quantity":      func(c *Config) { c.Pricing.BoardQuantity = 0 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.TypeConfig))
		})
	}
}

func TestGlobalConfig(t *testing.T) {
	orig := Get()
	defer Set(orig)

	cfg := Default()
	cfg.Pricing.BoardQuantity = 9
	Set(cfg)
	assert.Equal(t, 9, Get().Pricing.BoardQuantity)
}
