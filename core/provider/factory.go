package provider

import (
	"fmt"

	"go.uber.org/zap"

	"pcb-cost/core/prompts"
	"pcb-cost/core/types"
	"pcb-cost/internal/config"
	"pcb-cost/internal/errors"
)

// New selects the adapter named by cfg.Provider. It returns a nil Adapter
// and no error for provider none, and a config error when credentials are
// missing.
func New(cfg config.LLMConfig, pc config.PromptsConfig, logger *zap.Logger) (Adapter, error) {
	opts := Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		Versions:    make(map[types.RequestKind]string),
	}
	for _, kind := range types.RequestKinds {
		opts.Versions[kind] = pc.PromptVersion(string(kind))
	}
	pm := prompts.NewManager(pc.Dir)

	switch cfg.ProviderName() {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderMock:
		return NewMock(), nil
	case config.ProviderOpenAI:
		c, err := NewOpenAI(cfg.ResolveAPIKey(), cfg.ModelName(), cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return NewClient(c, pm, opts, logger), nil
	case config.ProviderAnthropic:
		c, err := NewAnthropic(cfg.ResolveAPIKey(), cfg.ModelName(), cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return NewClient(c, pm, opts, logger), nil
	}
	return nil, errors.Config(fmt.Sprintf("unknown provider %q", cfg.Provider), nil)
}
