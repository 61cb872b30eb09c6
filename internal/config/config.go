// Package config provides configuration management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"pcb-cost/internal/errors"
	"pcb-cost/internal/logging"
)

// DefaultPath is the configuration file read when none is given
const DefaultPath = "pcb-cost.yaml"

// Provider names accepted in llm.provider
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Default model per provider
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
)

// Config is the main application configuration.
// Values come from a YAML or JSON file with PCB_COST_* environment overrides.
// API keys are only ever read from the environment.
type Config struct {
	// LLM configures the enrichment provider
	LLM LLMConfig `yaml:"llm" json:"llm"`

	// Enrichment holds feature flags and run limits for AI enrichment
	Enrichment EnrichmentConfig `yaml:"enrichment" json:"enrichment"`

	// Retry configures the provider retry schedule
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Cache configures the response cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Pricing configures the parametric pricing tables
	Pricing PricingConfig `yaml:"pricing" json:"pricing"`

	// Prompts configures prompt template lookup
	Prompts PromptsConfig `yaml:"prompts" json:"prompts"`

	// Logging contains logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// LLMConfig describes the provider and its call parameters
type LLMConfig struct {
	// Provider is one of none, openai, anthropic, mock
	Provider string `yaml:"provider" json:"provider" env:"PCB_COST_PROVIDER"`

	// Model overrides the provider's default model
	Model string `yaml:"model" json:"model" env:"PCB_COST_MODEL"`

	// BaseURL overrides the provider endpoint
	BaseURL string `yaml:"base_url" json:"base_url" env:"PCB_COST_BASE_URL"`

	// APIKey is secret and never comes from a file
	APIKey string `yaml:"-" json:"-" env:"PCB_COST_API_KEY"`

	Temperature float32 `yaml:"temperature" json:"temperature" env:"PCB_COST_TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens" env:"PCB_COST_MAX_TOKENS"`

	// RequestsPerMinute caps outbound provider calls
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute" env:"PCB_COST_REQUESTS_PER_MINUTE"`

	// MaxConcurrent bounds in-flight enrichment calls
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent" env:"PCB_COST_MAX_CONCURRENT"`

	// Timeout bounds a single provider request
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"PCB_COST_REQUEST_TIMEOUT"`
}

// EnrichmentConfig holds the enrichment feature flags
type EnrichmentConfig struct {
	Enabled        bool `yaml:"enabled" json:"enabled" env:"PCB_COST_ENRICHMENT"`
	Classification bool `yaml:"classification" json:"classification" env:"PCB_COST_AI_CLASSIFICATION"`
	PriceCheck     bool `yaml:"price_check" json:"price_check" env:"PCB_COST_AI_PRICE_CHECK"`
	Obsolescence   bool `yaml:"obsolescence" json:"obsolescence" env:"PCB_COST_AI_OBSOLESCENCE"`

	// ConfidenceThreshold is the deterministic confidence below which
	// classification is delegated to the provider
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold" env:"PCB_COST_CONFIDENCE_THRESHOLD"`

	// Timeout bounds all enrichment in one run
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"PCB_COST_ENRICHMENT_TIMEOUT"`
}

// RetryConfig configures retries of retryable provider failures
type RetryConfig struct {
	MaxRetries int             `yaml:"max_retries" json:"max_retries" env:"PCB_COST_MAX_RETRIES"`
	Backoff    []time.Duration `yaml:"backoff" json:"backoff" env:"PCB_COST_RETRY_BACKOFF" env-separator:","`
}

// CacheConfig contains cache-related settings
type CacheConfig struct {
	// Enabled enables the durable cache; disabled runs use an in-memory store
	Enabled bool `yaml:"enabled" json:"enabled" env:"PCB_COST_CACHE"`

	// Path is the SQLite database file
	Path string `yaml:"path" json:"path" env:"PCB_COST_CACHE_PATH"`

	// TTLDays is how long a cached response stays valid
	TTLDays int `yaml:"ttl_days" json:"ttl_days" env:"PCB_COST_CACHE_TTL_DAYS"`
}

// TTL returns the cache time to live
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// TablesFile is an optional HCL file overriding the built-in tables
	TablesFile string `yaml:"tables_file" json:"tables_file" env:"PCB_COST_PRICING_TABLES"`

	// Currency of every reported amount
	Currency string `yaml:"currency" json:"currency" env:"PCB_COST_CURRENCY"`

	// BoardQuantity multiplies line quantities at each volume tier
	BoardQuantity int `yaml:"board_quantity" json:"board_quantity" env:"PCB_COST_BOARD_QUANTITY"`
}

// PromptsConfig configures prompt template lookup
type PromptsConfig struct {
	// Dir overrides the templates compiled into the binary
	Dir string `yaml:"dir" json:"dir" env:"PCB_COST_PROMPTS_DIR"`

	// Versions selects a template version per prompt kind
	Versions map[string]string `yaml:"versions" json:"versions"`
}

// Default returns a default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LLM: LLMConfig{
			Provider:          ProviderNone,
			Temperature:       0.1,
			MaxTokens:         1024,
			RequestsPerMinute: 60,
			MaxConcurrent:     4,
			Timeout:           30 * time.Second,
		},
		Enrichment: EnrichmentConfig{
			Enabled:             false,
			Classification:      true,
			PriceCheck:          true,
			Obsolescence:        true,
			ConfidenceThreshold: 0.75,
			Timeout:             2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Backoff:    []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    cachePath(home),
			TTLDays: 30,
		},
		Pricing: PricingConfig{
			Currency:      "USD",
			BoardQuantity: 1,
		},
		Prompts: PromptsConfig{
			Versions: map[string]string{},
		},
		Logging: logging.DefaultConfig(),
	}
}

func cachePath(home string) string {
	if home == "" {
		return "pcb-cost-cache.db"
	}
	return filepath.Join(home, ".pcb-cost", "cache.db")
}

// Load reads configuration from path with environment overrides. An empty
// path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, errors.Config("failed to read environment", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, errors.Config(fmt.Sprintf("failed to read %s", path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "", ProviderNone, ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		return errors.Config(fmt.Sprintf("unknown provider %q", c.LLM.Provider), nil)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.Config("llm.temperature must be within [0, 2]", nil)
	}
	if c.LLM.MaxTokens <= 0 {
		return errors.Config("llm.max_tokens must be positive", nil)
	}
	if c.LLM.RequestsPerMinute <= 0 {
		return errors.Config("llm.requests_per_minute must be positive", nil)
	}
	if c.LLM.MaxConcurrent <= 0 {
		return errors.Config("llm.max_concurrent must be positive", nil)
	}
	if c.Enrichment.ConfidenceThreshold < 0 || c.Enrichment.ConfidenceThreshold > 1 {
		return errors.Config("enrichment.confidence_threshold must be within [0, 1]", nil)
	}
	if c.Enrichment.Timeout < 0 || c.LLM.Timeout < 0 {
		return errors.Config("timeouts must not be negative", nil)
	}
	if c.Retry.MaxRetries < 0 {
		return errors.Config("retry.max_retries must not be negative", nil)
	}
	for _, d := range c.Retry.Backoff {
		if d < 0 {
			return errors.Config("retry.backoff entries must not be negative", nil)
		}
	}
	if c.Cache.TTLDays <= 0 {
		return errors.Config("cache.ttl_days must be positive", nil)
	}
	if c.Pricing.BoardQuantity < 1 {
		return errors.Config("pricing.board_quantity must be at least 1", nil)
	}
	return nil
}

// ProviderName returns the configured provider with none for empty
func (c *LLMConfig) ProviderName() string {
	if c.Provider == "" {
		return ProviderNone
	}
	return c.Provider
}

// ModelName returns the configured model or the provider default
func (c *LLMConfig) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	switch c.Provider {
	case ProviderOpenAI:
		return DefaultOpenAIModel
	case ProviderAnthropic:
		return DefaultAnthropicModel
	}
	return ""
}

// ResolveAPIKey returns PCB_COST_API_KEY or the provider's own variable
func (c *LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// HasCredentials reports whether the provider can be called
func (c *LLMConfig) HasCredentials() bool {
	switch c.Provider {
	case ProviderMock:
		return true
	case ProviderOpenAI, ProviderAnthropic:
		return c.ResolveAPIKey() != ""
	}
	return false
}

// PromptVersion returns the configured version for kind, v1 by default
func (c *PromptsConfig) PromptVersion(kind string) string {
	if v, ok := c.Versions[kind]; ok && v != "" {
		return v
	}
	return "v1"
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
