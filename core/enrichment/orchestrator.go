// Package enrichment puts the provider adapter behind the response cache,
// the rate limiter and the retry policy, and turns every failure into an
// explicit unavailable result.
package enrichment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pcb-cost/core/llmcache"
	"pcb-cost/core/provider"
	"pcb-cost/core/ratelimit"
	"pcb-cost/core/retry"
	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
	"pcb-cost/internal/logging"
)

// Options selects which enrichment features run
type Options struct {
	Enabled        bool
	Classification bool
	PriceCheck     bool
	Obsolescence   bool

	// CacheTTL is the lifetime of written entries
	CacheTTL time.Duration

	// MaxConcurrent bounds batch calls
	MaxConcurrent int
}

// DefaultOptions enables every feature with a 30 day cache
func DefaultOptions() Options {
	return Options{
		Enabled:        true,
		Classification: true,
		PriceCheck:     true,
		Obsolescence:   true,
		CacheTTL:       30 * 24 * time.Hour,
		MaxConcurrent:  DefaultPoolConfig().MaxConcurrent,
	}
}

// Orchestrator answers enrichment questions from cache or provider
type Orchestrator struct {
	adapter provider.Adapter
	cache   llmcache.Store
	limiter *ratelimit.Limiter
	policy  retry.Policy
	pool    *Pool
	opts    Options
	logger  *zap.Logger

	// authFailed disables the orchestrator after the first auth failure
	authFailed atomic.Bool
	authOnce   sync.Once

	calls       atomic.Int64
	cacheHits   atomic.Int64
	tokensUsed  atomic.Int64
	tokensSaved atomic.Int64
}

// Stats reports orchestrator activity over its lifetime
type Stats struct {
	ProviderCalls int64
	CacheHits     int64
	TokensUsed    int64
	TokensSaved   int64
}

// New creates an orchestrator. A nil adapter yields an orchestrator that
// answers not_configured; a nil cache disables caching; a nil limiter
// throttles to 60 requests per minute.
func New(adapter provider.Adapter, cache llmcache.Store, limiter *ratelimit.Limiter, policy retry.Policy, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Named("enrichment")
	}
	if limiter == nil {
		limiter = ratelimit.New(60, policy.Clock, logger)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultOptions().CacheTTL
	}
	return &Orchestrator{
		adapter: adapter,
		cache:   cache,
		limiter: limiter,
		policy:  policy,
		pool:    NewPool(PoolConfig{MaxConcurrent: opts.MaxConcurrent}, logger),
		opts:    opts,
		logger:  logger,
	}
}

// ProviderName returns the adapter name, or none
func (o *Orchestrator) ProviderName() string {
	if o == nil || o.adapter == nil {
		return "none"
	}
	return o.adapter.Name()
}

// Enabled reports whether any call can reach the provider
func (o *Orchestrator) Enabled() bool {
	return o != nil && o.opts.Enabled && o.adapter != nil && !o.authFailed.Load()
}

// FeatureEnabled reports whether kind is switched on
func (o *Orchestrator) FeatureEnabled(kind types.RequestKind) bool {
	if o == nil {
		return false
	}
	switch kind {
	case types.KindClassification:
		return o.opts.Classification
	case types.KindPriceCheck:
		return o.opts.PriceCheck
	case types.KindObsolescence:
		return o.opts.Obsolescence
	}
	return false
}

// AuthFailed reports whether a provider auth failure disabled enrichment
func (o *Orchestrator) AuthFailed() bool {
	return o != nil && o.authFailed.Load()
}

// Stats returns lifetime counters
func (o *Orchestrator) Stats() Stats {
	return Stats{
		ProviderCalls: o.calls.Load(),
		CacheHits:     o.cacheHits.Load(),
		TokensUsed:    o.tokensUsed.Load(),
		TokensSaved:   o.tokensSaved.Load(),
	}
}

// ClassifyComponent asks for item's category
func (o *Orchestrator) ClassifyComponent(ctx context.Context, item types.LineItem) Result[types.ClassificationResult] {
	key := llmcache.NewKey(types.KindClassification, item.Identity())
	return execute(ctx, o, key, func(ctx context.Context) (types.ClassificationResult, types.Usage, error) {
		return o.adapter.Classify(ctx, item)
	})
}

// CheckPriceReasonableness asks whether q.Band is plausible for the part
func (o *Orchestrator) CheckPriceReasonableness(ctx context.Context, q provider.PriceQuery) Result[types.PriceReasonablenessResult] {
	key := llmcache.NewKey(types.KindPriceCheck, q.Item.Identity(), string(q.Package), strconv.Itoa(q.Quantity))
	return execute(ctx, o, key, func(ctx context.Context) (types.PriceReasonablenessResult, types.Usage, error) {
		return o.adapter.CheckPrice(ctx, q)
	})
}

// CheckObsolescence asks for the lifecycle risk of item
func (o *Orchestrator) CheckObsolescence(ctx context.Context, item types.LineItem) Result[types.ObsolescenceResult] {
	key := llmcache.NewKey(types.KindObsolescence, item.Identity())
	return execute(ctx, o, key, func(ctx context.Context) (types.ObsolescenceResult, types.Usage, error) {
		return o.adapter.CheckObsolescence(ctx, item)
	})
}

// BatchCheckObsolescence checks items on the worker pool. Results are in
// input order.
func (o *Orchestrator) BatchCheckObsolescence(ctx context.Context, items []types.LineItem) []Result[types.ObsolescenceResult] {
	return batch(ctx, o, items, func(item types.LineItem) string { return item.Identity() }, o.CheckObsolescence)
}

// BatchClassify classifies items on the worker pool. Results are in input
// order.
func (o *Orchestrator) BatchClassify(ctx context.Context, items []types.LineItem) []Result[types.ClassificationResult] {
	return batch(ctx, o, items, func(item types.LineItem) string { return item.Identity() }, o.ClassifyComponent)
}

// BatchCheckPrices checks queries on the worker pool. Results are in input
// order.
func (o *Orchestrator) BatchCheckPrices(ctx context.Context, queries []provider.PriceQuery) []Result[types.PriceReasonablenessResult] {
	return batch(ctx, o, queries, func(q provider.PriceQuery) string { return q.Item.Identity() }, o.CheckPriceReasonableness)
}

func batch[In, Out any](ctx context.Context, o *Orchestrator, in []In, id func(In) string, call func(context.Context, In) Result[Out]) []Result[Out] {
	out := make([]Result[Out], len(in))
	if o == nil {
		for i := range out {
			out[i] = unavailable[Out](ReasonDisabled, "")
		}
		return out
	}

	tasks := make([]Task[Result[Out]], len(in))
	for i, v := range in {
		tasks[i] = Task[Result[Out]]{
			ID: id(v),
			Execute: func(ctx context.Context) (Result[Out], error) {
				return call(ctx, v), nil
			},
		}
	}

	for i, r := range Run(ctx, o.pool, tasks, nil) {
		if r.Err != nil {
			out[i] = unavailable[Out](ReasonTimeout, r.Err.Error())
			continue
		}
		out[i] = r.Result
	}
	return out
}

// gate returns the reason a call of kind cannot reach the provider
func (o *Orchestrator) gate(kind types.RequestKind) Reason {
	switch {
	case o == nil || !o.opts.Enabled:
		return ReasonDisabled
	case o.adapter == nil:
		return ReasonNotConfigured
	case !o.FeatureEnabled(kind):
		return ReasonFeatureOff
	case o.authFailed.Load():
		return ReasonAuth
	}
	return ReasonNone
}

func execute[T any](ctx context.Context, o *Orchestrator, key llmcache.Key, call func(ctx context.Context) (T, types.Usage, error)) Result[T] {
	if reason := o.gate(key.Kind); reason != ReasonNone {
		return unavailable[T](reason, "")
	}

	logger := o.logger.With(zap.String("kind", string(key.Kind)), zap.String("identity", key.Identity))

	if v, tokens, ok := lookup[T](ctx, o, key, logger); ok {
		o.cacheHits.Add(1)
		o.tokensSaved.Add(int64(tokens))
		return available(v, types.Usage{}, 0, true)
	}

	var usage types.Usage
	v, st, err := retry.Do(ctx, o.policy, func(ctx context.Context) (T, error) {
		if err := o.limiter.Acquire(ctx); err != nil {
			var zero T
			return zero, err
		}
		o.calls.Add(1)
		v, u, err := call(ctx)
		usage.PromptTokens += u.PromptTokens
		usage.CompletionTokens += u.CompletionTokens
		return v, err
	})
	o.tokensUsed.Add(int64(usage.Total()))

	if err != nil {
		res := o.failure(err, logger)
		res.Usage = usage
		res.Attempts = st.Attempts
		return unavailableFrom[T](res)
	}

	store(ctx, o, key, v, usage, logger)
	return available(v, usage, st.Attempts, false)
}

// failure maps a terminal error to an unavailable result
func (o *Orchestrator) failure(err error, logger *zap.Logger) Result[struct{}] {
	detail := logging.Redact(err.Error())
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		logger.Debug("enrichment abandoned", zap.Error(err))
		return unavailable[struct{}](ReasonTimeout, detail)
	case errors.IsType(err, errors.TypeAuth):
		o.authFailed.Store(true)
		o.authOnce.Do(func() {
			logger.Warn("provider rejected credentials, enrichment disabled", logging.RedactedError(err))
		})
		return unavailable[struct{}](ReasonAuth, detail)
	case errors.IsType(err, errors.TypeParse):
		logger.Warn("provider response failed validation", logging.RedactedError(err))
		return unavailable[struct{}](ReasonParse, detail)
	case retry.IsExhausted(err):
		logger.Warn("provider retries exhausted", logging.RedactedError(err))
		return unavailable[struct{}](ReasonExhausted, detail)
	}
	logger.Warn("provider call failed", logging.RedactedError(err))
	return unavailable[struct{}](ReasonFailed, detail)
}

func unavailableFrom[T any](r Result[struct{}]) Result[T] {
	return Result[T]{Reason: r.Reason, Detail: r.Detail, Usage: r.Usage, Attempts: r.Attempts}
}

// lookup returns a cached value. Read errors are misses. Entries that fail
// to decode or validate are evicted so the next write can replace them.
func lookup[T any](ctx context.Context, o *Orchestrator, key llmcache.Key, logger *zap.Logger) (T, int, bool) {
	var v T
	if o.cache == nil {
		return v, 0, false
	}
	entry, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed", zap.Error(err))
		return v, 0, false
	}
	if !ok {
		return v, 0, false
	}

	err = json.Unmarshal(entry.Payload, &v)
	if err == nil {
		if c, ok := any(v).(validator); ok {
			err = c.Validate()
		}
	}
	if err != nil {
		logger.Warn("discarding corrupt cache entry", zap.Error(err))
		if derr := o.cache.Delete(ctx, key); derr != nil {
			logger.Warn("cache delete failed", zap.Error(derr))
		}
		var zero T
		return zero, 0, false
	}
	return v, entry.Tokens, true
}

type validator interface {
	Validate() error
}

func store[T any](ctx context.Context, o *Orchestrator, key llmcache.Key, v T, usage types.Usage, logger *zap.Logger) {
	if o.cache == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Warn("cache encode failed", zap.Error(err))
		return
	}
	if err := o.cache.Put(ctx, key, payload, usage.Total(), o.opts.CacheTTL); err != nil {
		logger.Warn("cache write failed", zap.Error(err))
	}
}
