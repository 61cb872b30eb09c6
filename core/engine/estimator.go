// Package engine runs the estimation pipeline: classify every line item,
// price it across volume tiers, cost assembly, optionally enrich with a
// provider, then aggregate.
//
// Enrichment never changes a number unless a provider answers: every
// unavailable result keeps the deterministic value.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pcb-cost/core/assembly"
	"pcb-cost/core/classify"
	"pcb-cost/core/enrichment"
	"pcb-cost/core/pricing"
	"pcb-cost/core/types"
	"pcb-cost/internal/clock"
	"pcb-cost/internal/errors"
	"pcb-cost/internal/logging"
)

// DefaultConfidenceThreshold is the deterministic confidence below which
// classification is delegated
const DefaultConfidenceThreshold = 0.75

// Options configures an Estimator
type Options struct {
	// BoardQuantity multiplies every line quantity; defaults to 1
	BoardQuantity int

	// Volumes are the board counts to report; the board quantity is always
	// included. Defaults to the pricing breakpoints.
	Volumes []int

	// ConfidenceThreshold triggers AI classification below it
	ConfidenceThreshold float64

	// EnrichmentTimeout bounds all enrichment in one run; zero is unbounded
	EnrichmentTimeout time.Duration

	// EnrichmentUnavailable is why requested enrichment could not be wired.
	// A non-empty value is reported as a degraded note on every run.
	EnrichmentUnavailable string

	Clock clock.Clock
}

// DefaultOptions returns single-board options
func DefaultOptions() Options {
	return Options{
		BoardQuantity:       1,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		EnrichmentTimeout:   2 * time.Minute,
	}
}

// Estimator produces cost estimates. It is safe for concurrent runs when
// its collaborators are.
type Estimator struct {
	classifier *classify.Classifier
	pricing    *pricing.Model
	assembly   *assembly.Model
	enrichment *enrichment.Orchestrator
	opts       Options
	logger     *zap.Logger
}

// New creates an estimator. A nil orchestrator runs deterministic only.
func New(pm *pricing.Model, am *assembly.Model, orch *enrichment.Orchestrator, opts Options, logger *zap.Logger) (*Estimator, error) {
	if pm == nil || am == nil {
		return nil, errors.Config("pricing and assembly models are required", nil)
	}
	if opts.BoardQuantity == 0 {
		opts.BoardQuantity = 1
	}
	if opts.BoardQuantity < 1 {
		return nil, errors.Config(fmt.Sprintf("board quantity %d must be at least 1", opts.BoardQuantity), nil)
	}
	if opts.ConfidenceThreshold < 0 || opts.ConfidenceThreshold > 1 {
		return nil, errors.Config(fmt.Sprintf("confidence threshold %v must be within [0, 1]", opts.ConfidenceThreshold), nil)
	}
	for _, v := range opts.Volumes {
		if v < 1 {
			return nil, errors.Config(fmt.Sprintf("volume tier %d must be at least 1", v), nil)
		}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if logger == nil {
		logger = logging.Named("estimator")
	}
	return &Estimator{
		classifier: classify.New(),
		pricing:    pm,
		assembly:   am,
		enrichment: orch,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Volumes returns the sorted board counts a run reports
func (e *Estimator) Volumes() []int {
	vols := e.opts.Volumes
	if len(vols) == 0 {
		vols = e.pricing.Curve().Breakpoints
	}
	seen := map[int]bool{e.opts.BoardQuantity: true}
	out := []int{e.opts.BoardQuantity}
	for _, v := range vols {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// Estimate prices items. Invalid items are excluded with a warning and
// enrichment failures degrade to deterministic values; the only errors are
// for a missing BOM or a cancelled context before the run starts.
func (e *Estimator) Estimate(ctx context.Context, items []types.LineItem) (*types.CostEstimate, error) {
	if items == nil {
		return nil, errors.Input("no BOM supplied", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := e.opts.Clock.Now()
	r := e.newRun(items, start)
	r.logger.Info("estimate started", zap.Int("lines", len(items)), zap.Int("boards", r.boards))

	ectx, cancel := e.enrichmentContext(ctx)
	defer cancel()

	steps := []struct {
		phase Phase
		run   func() error
	}{
		{PhaseClassifying, func() error { return r.classify(ectx) }},
		{PhasePricing, r.price},
		{PhaseAssembly, r.assemble},
		{PhaseEnriching, func() error { return r.enrich(ectx) }},
		{PhaseAggregating, r.aggregate},
	}
	for _, s := range steps {
		if s.phase == PhaseEnriching && !r.enriching() {
			continue
		}
		if err := r.enter(s.phase); err != nil {
			return nil, errors.Internal("estimation pipeline", err)
		}
		if err := s.run(); err != nil {
			return nil, err
		}
	}
	r.finishEnrichment(ectx)
	r.finishNotes()
	if err := r.enter(PhaseDone); err != nil {
		return nil, errors.Internal("estimation pipeline", err)
	}

	elapsed := e.opts.Clock.Now().Sub(start)
	r.est.Metadata.Duration = elapsed.String()
	r.logger.Info("estimate complete",
		zap.Int("lines", len(items)),
		zap.Int("warnings", len(r.est.Warnings)),
		zap.Bool("degraded", r.est.IsDegraded()),
		zap.Duration("duration", elapsed))
	return r.est, nil
}

func (e *Estimator) enrichmentContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.EnrichmentTimeout > 0 && e.enrichment.Enabled() {
		return context.WithTimeout(ctx, e.opts.EnrichmentTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Estimator) newRun(items []types.LineItem, start time.Time) *run {
	id := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", id))
	return &run{
		Estimator: e,
		tracker:   tracker{phase: PhaseInit, logger: logger},
		items:     items,
		boards:    e.opts.BoardQuantity,
		volumes:   e.Volumes(),
		logger:    logger,
		est: &types.CostEstimate{
			Components: make([]types.ComponentCostEstimate, len(items)),
			Coverage:   make(map[string]types.EnrichmentCoverage),
			Metadata: types.EstimateMetadata{
				RunID:             id,
				Currency:          e.pricing.Currency(),
				GeneratedAt:       start.UTC(),
				EnrichmentEnabled: e.enrichment.Enabled(),
				Provider:          e.enrichment.ProviderName(),
				BoardQuantity:     e.opts.BoardQuantity,
				LineCount:         len(items),
			},
		},
	}
}
