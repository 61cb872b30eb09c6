package cmd

import (
	"strings"

	"go.uber.org/zap"

	"pcb-cost/adapters/tables"
	"pcb-cost/core/assembly"
	"pcb-cost/core/engine"
	"pcb-cost/core/enrichment"
	"pcb-cost/core/llmcache"
	"pcb-cost/core/pricing"
	"pcb-cost/core/provider"
	"pcb-cost/core/ratelimit"
	"pcb-cost/core/retry"
	"pcb-cost/core/types"
	"pcb-cost/internal/clock"
	"pcb-cost/internal/config"
	"pcb-cost/internal/logging"
)

// pipeline owns everything one estimate command needs
type pipeline struct {
	estimator *engine.Estimator
	enricher  *enrichment.Orchestrator
	cache     llmcache.Store

	// unavailable is why requested enrichment was not wired
	unavailable string
}

// newPipeline wires tables, models and the enrichment stack from cfg.
// Missing credentials or an unusable cache degrade to a deterministic run.
func newPipeline(cfg *config.Config, volumes []int, clk clock.Clock, logger *zap.Logger) (*pipeline, error) {
	if clk == nil {
		clk = clock.Real{}
	}

	set, err := tables.LoadFile(cfg.Pricing.TablesFile)
	if err != nil {
		return nil, err
	}
	// A currency named in the tables file wins over the config
	if !set.CurrencySet && cfg.Pricing.Currency != "" {
		set.Pricing.Currency = types.Currency(strings.ToUpper(cfg.Pricing.Currency))
	}

	pm, err := pricing.NewModel(set.Pricing)
	if err != nil {
		return nil, err
	}
	am, err := assembly.NewModel(set.Assembly)
	if err != nil {
		return nil, err
	}

	p := &pipeline{}
	if err := p.wireEnrichment(cfg, clk, logger); err != nil {
		return nil, err
	}

	p.estimator, err = engine.New(pm, am, p.enricher, engine.Options{
		BoardQuantity:         cfg.Pricing.BoardQuantity,
		Volumes:               volumes,
		ConfidenceThreshold:   cfg.Enrichment.ConfidenceThreshold,
		EnrichmentTimeout:     cfg.Enrichment.Timeout,
		EnrichmentUnavailable: p.unavailable,
		Clock:                 clk,
	}, logger.Named("estimator"))
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *pipeline) wireEnrichment(cfg *config.Config, clk clock.Clock, logger *zap.Logger) error {
	if !cfg.Enrichment.Enabled {
		return nil
	}
	if cfg.LLM.ProviderName() == config.ProviderNone {
		logger.Warn("enrichment enabled without a provider; running deterministic only")
		p.unavailable = "no provider configured"
		return nil
	}
	if !cfg.LLM.HasCredentials() {
		logger.Warn("no API key for provider; running deterministic only",
			zap.String("provider", cfg.LLM.ProviderName()))
		p.unavailable = "no API key for provider " + cfg.LLM.ProviderName()
		return nil
	}

	adapter, err := provider.New(cfg.LLM, cfg.Prompts, logger.Named("provider"))
	if err != nil {
		logger.Warn("provider unavailable; running deterministic only",
			zap.String("provider", cfg.LLM.ProviderName()), logging.RedactedError(err))
		p.unavailable = "provider " + cfg.LLM.ProviderName() + " could not be created: " + logging.Redact(err.Error())
		return nil
	}

	p.cache = openCache(cfg.Cache, clk, logger)
	p.enricher = enrichment.New(
		adapter,
		p.cache,
		ratelimit.New(cfg.LLM.RequestsPerMinute, clk, logger.Named("ratelimit")),
		retry.Policy{MaxRetries: cfg.Retry.MaxRetries, Backoff: cfg.Retry.Backoff, Clock: clk},
		enrichment.Options{
			Enabled:        true,
			Classification: cfg.Enrichment.Classification,
			PriceCheck:     cfg.Enrichment.PriceCheck,
			Obsolescence:   cfg.Enrichment.Obsolescence,
			CacheTTL:       cfg.Cache.TTL(),
			MaxConcurrent:  cfg.LLM.MaxConcurrent,
		},
		logger.Named("enrichment"),
	)
	return nil
}

// openCache returns the durable cache, or a process-local one when the
// cache is disabled or cannot be opened
func openCache(cfg config.CacheConfig, clk clock.Clock, logger *zap.Logger) llmcache.Store {
	if !cfg.Enabled {
		return llmcache.NewMemoryStore(clk)
	}
	store, err := llmcache.OpenSQLite(cfg.Path, clk, logger.Named("llmcache"))
	if err != nil {
		logger.Warn("cache unavailable, using memory", zap.String("path", cfg.Path), zap.Error(err))
		return llmcache.NewMemoryStore(clk)
	}
	return store
}

// Close releases the cache
func (p *pipeline) Close() error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Close()
}
