package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pcb-cost/core/assembly"
	"pcb-cost/core/enrichment"
	"pcb-cost/core/llmcache"
	"pcb-cost/core/pricing"
	"pcb-cost/core/provider"
	"pcb-cost/core/ratelimit"
	"pcb-cost/core/retry"
	"pcb-cost/core/types"
	"pcb-cost/internal/clock"
	"pcb-cost/internal/errors"
)

var epoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newOrchestrator(t *testing.T, mock *provider.Mock, opts enrichment.Options) *enrichment.Orchestrator {
	t.Helper()
	clk := clock.NewFake(epoch)
	policy := retry.DefaultPolicy()
	policy.Clock = clock.NewFake(epoch)
	return enrichment.New(mock, llmcache.NewMemoryStore(clk), ratelimit.New(600, clk, zap.NewNop()), policy, opts, zap.NewNop())
}

func newEstimator(t *testing.T, orch *enrichment.Orchestrator, mutate ...func(*Options)) *Estimator {
	t.Helper()
	am, err := assembly.NewModel(assembly.DefaultRates())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Clock = clock.NewFake(epoch)
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(pricing.MustDefault(), am, orch, opts, zap.NewNop())
	require.NoError(t, err)
	return e
}

func resistor() types.LineItem {
	return types.LineItem{ReferenceDesignator: "R1", Quantity: 1, Description: "10k resistor", LineNumber: 1}
}

func mixedBOM() []types.LineItem {
	return []types.LineItem{
		{ReferenceDesignator: "R1,R2,R3,R4", Quantity: 4, MPN: "RC0603FR-0710KL", Description: "10k 1%", Package: "R_0603", LineNumber: 1},
		{ReferenceDesignator: "C1,C2", Quantity: 2, MPN: "GRM188R71C104KA01D", Description: "100nF", Package: "C_0603", LineNumber: 2},
		{ReferenceDesignator: "U1", Quantity: 1, MPN: "STM32F103C8T6", Description: "MCU", Package: "LQFP-48", LineNumber: 3},
		{ReferenceDesignator: "J1", Quantity: 1, Description: "USB-C receptacle", LineNumber: 4},
		{ReferenceDesignator: "M1", Quantity: 2, Description: "mystery module", LineNumber: 5},
	}
}

func bandEqual(t *testing.T, want, got types.PriceBand, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, want.Low.Equal(got.Low), msgAndArgs...)
	assert.True(t, want.Typical.Equal(got.Typical), msgAndArgs...)
	assert.True(t, want.High.Equal(got.High), msgAndArgs...)
}

func tiersEqual(t *testing.T, want, got []types.TierTotal) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Volume, got[i].Volume)
		bandEqual(t, want[i].Components, got[i].Components, "components at %d", want[i].Volume)
		assert.True(t, want[i].Assembly.Equal(got[i].Assembly), "assembly at %d", want[i].Volume)
		bandEqual(t, want[i].PerBoard, got[i].PerBoard, "per board at %d", want[i].Volume)
		bandEqual(t, want[i].PerRun, got[i].PerRun, "per run at %d", want[i].Volume)
	}
}

func TestEstimateResistor(t *testing.T) {
	est, err := newEstimator(t, nil).Estimate(context.Background(), []types.LineItem{resistor()})
	require.NoError(t, err)

	require.Len(t, est.Components, 1)
	c := est.Components[0]
	assert.Equal(t, types.CategoryResistor, c.Category)
	assert.Equal(t, types.RulePrefix, c.Classification.Rule)
	assert.Equal(t, 0.9, c.Classification.Confidence)
	assert.Equal(t, types.PackageSMDMedium, c.Package)
	assert.Equal(t, types.TierSmallSMD, c.AssemblyTier)
	assert.False(t, c.Excluded)

	// 0.9 confidence widens by 1.05
	assert.True(t, c.UnitPrice.Typical.Equal(dec("0.01")), c.UnitPrice.String())
	assert.True(t, c.UnitPrice.Low.Equal(dec("0.001905")), c.UnitPrice.String())
	assert.True(t, c.UnitPrice.High.Equal(dec("0.0525")), c.UnitPrice.String())
	assert.Equal(t, 1, c.UnitPrice.Volume)

	assert.Equal(t, []int{1, 10, 100, 1000, 10000}, volumesOf(est))
	one, ok := est.Tier(1)
	require.True(t, ok)
	assert.True(t, one.Components.Typical.Equal(dec("0.01")))
	// 0.01 placement + 150 setup + 2.50 feeder
	assert.True(t, one.Assembly.Equal(dec("152.51")), one.Assembly.String())
	// 5% of 0.01 plus 100 NRE
	assert.True(t, one.Overhead.Typical.Equal(dec("100.0005")), one.Overhead.String())
	assert.True(t, one.PerBoard.Typical.Equal(dec("252.5205")), one.PerBoard.String())

	assert.Equal(t, 1, est.Assembly.TotalPlacements)
	assert.Equal(t, 1, est.Assembly.UniqueParts)
	assert.Empty(t, est.Warnings)
	assert.False(t, est.IsDegraded())
	assert.NotEmpty(t, est.Metadata.RunID)
	assert.Equal(t, "none", est.Metadata.Provider)
	assert.Equal(t, types.CurrencyUSD, est.Metadata.Currency)
	assert.Equal(t, epoch, est.Metadata.GeneratedAt)
}

func volumesOf(est *types.CostEstimate) []int {
	out := make([]int, len(est.Tiers))
	for i, tier := range est.Tiers {
		out[i] = tier.Volume
	}
	return out
}

func TestEstimateDNPContributesNothing(t *testing.T) {
	e := newEstimator(t, nil)
	dnp := types.LineItem{ReferenceDesignator: "R5", Quantity: 50, Description: "10k resistor", DNP: true, LineNumber: 2}

	with, err := e.Estimate(context.Background(), []types.LineItem{resistor(), dnp})
	require.NoError(t, err)
	without, err := e.Estimate(context.Background(), []types.LineItem{resistor()})
	require.NoError(t, err)

	c, ok := with.Component("R5")
	require.True(t, ok)
	assert.True(t, c.Excluded)
	assert.Equal(t, "do not place", c.ExclusionReason)
	assert.False(t, c.UnitPrice.IsZero())
	for _, tier := range c.Tiers {
		assert.True(t, tier.LineTotal.IsZero(), "volume %d", tier.Volume)
		assert.False(t, tier.UnitCost.IsZero())
	}

	assert.Equal(t, 1, with.Assembly.TotalPlacements)
	tiersEqual(t, without.Tiers, with.Tiers)
	assert.NotEqual(t, with.Metadata.RunID, without.Metadata.RunID)
}

func TestEstimateExcludesInvalidItems(t *testing.T) {
	items := []types.LineItem{
		resistor(),
		{ReferenceDesignator: " ", Quantity: 3, LineNumber: 7},
		{ReferenceDesignator: "C9", Quantity: -2, LineNumber: 8},
		{ReferenceDesignator: "C10", Quantity: 0, LineNumber: 9},
	}
	est, err := newEstimator(t, nil).Estimate(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, est.Components, 4)
	assert.True(t, est.Components[1].Excluded)
	assert.Contains(t, est.Components[1].ExclusionReason, "reference designator is empty")
	assert.True(t, est.Components[2].Excluded)
	assert.Contains(t, est.Components[2].ExclusionReason, "negative quantity")
	assert.Equal(t, "zero quantity", est.Components[3].ExclusionReason)

	require.Len(t, est.Warnings, 2)
	assert.Contains(t, est.Warnings[0], "line 7")
	assert.Contains(t, est.Warnings[1], "C9")
	assert.Equal(t, 1, est.Assembly.TotalPlacements)
	assert.True(t, hasNote(est.Notes, "3 of 4 lines excluded"))
}

func TestEstimateNotesDeterministicMode(t *testing.T) {
	est, err := newEstimator(t, nil).Estimate(context.Background(), []types.LineItem{resistor()})
	require.NoError(t, err)
	assert.Equal(t, []string{"deterministic estimate only; no AI enrichment applied"}, est.Notes)
	assert.False(t, est.IsDegraded())

	e := newEstimator(t, nil, func(o *Options) { o.EnrichmentUnavailable = "no API key for provider openai" })
	est, err = e.Estimate(context.Background(), []types.LineItem{resistor()})
	require.NoError(t, err)
	assert.True(t, est.IsDegraded())
	assert.True(t, hasNote(est.DegradedNotes, "no API key for provider openai"))
	assert.True(t, hasNote(est.Notes, "deterministic estimate only"))
}

func TestEstimateRejectsMissingBOM(t *testing.T) {
	_, err := newEstimator(t, nil).Estimate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeInput))

	est, err := newEstimator(t, nil).Estimate(context.Background(), []types.LineItem{})
	require.NoError(t, err)
	for _, tier := range est.Tiers {
		assert.True(t, tier.Components.IsZero())
		assert.True(t, tier.Assembly.IsZero())
	}
}

func mystery() types.LineItem {
	return types.LineItem{ReferenceDesignator: "M1", Quantity: 2, Description: "mystery module", LineNumber: 1}
}

func TestAIOverridesLowConfidence(t *testing.T) {
	mock := provider.NewMock()
	mock.ClassifyFunc = func(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error) {
		return types.ClassificationResult{Category: types.CategorySensor, Confidence: 0.95, Reasoning: "environmental sensor module"},
			types.Usage{PromptTokens: 80, CompletionTokens: 20}, nil
	}
	enriched, err := newEstimator(t, newOrchestrator(t, mock, enrichment.DefaultOptions())).
		Estimate(context.Background(), []types.LineItem{mystery()})
	require.NoError(t, err)

	c := enriched.Components[0]
	assert.Equal(t, types.CategorySensor, c.Category)
	assert.Equal(t, types.SourceAI, c.Classification.Source)
	assert.Equal(t, 0.95, c.Classification.Confidence)
	assert.Equal(t, types.PackageQFN, c.Package)
	assert.True(t, hasNote(c.Notes, "classified as sensor by provider"))
	assert.Equal(t, 1, mock.ClassifyCalls())
	assert.Equal(t, types.EnrichmentCoverage{Requested: 1, Completed: 1}, enriched.Coverage[capClassification])

	plain, err := newEstimator(t, nil).Estimate(context.Background(), []types.LineItem{mystery()})
	require.NoError(t, err)
	d := plain.Components[0]
	assert.Equal(t, types.CategoryUnknown, d.Category)
	assert.Equal(t, types.SourceNone, d.Classification.Source)
	assert.True(t, hasNote(d.Notes, "fallback band"))
	assert.Empty(t, plain.Coverage)

	assert.False(t, c.UnitPrice.Typical.Equal(d.UnitPrice.Typical))
}

func TestAITieKeepsDeterministic(t *testing.T) {
	mock := provider.NewMock()
	mock.ClassifyFunc = func(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error) {
		return types.ClassificationResult{Category: types.CategoryCapacitor, Confidence: 0.7}, types.Usage{}, nil
	}
	item := types.LineItem{ReferenceDesignator: "M2", Quantity: 1, Description: "LDO regulator", LineNumber: 1}

	est, err := newEstimator(t, newOrchestrator(t, mock, enrichment.DefaultOptions())).
		Estimate(context.Background(), []types.LineItem{item})
	require.NoError(t, err)

	c := est.Components[0]
	assert.Equal(t, types.CategoryIC, c.Category)
	assert.Equal(t, types.RuleKeyword, c.Classification.Rule)
	assert.True(t, hasNote(c.Notes, "kept deterministic ic"))
}

func TestConfidentItemsSkipProvider(t *testing.T) {
	mock := provider.NewMock()
	_, err := newEstimator(t, newOrchestrator(t, mock, enrichment.DefaultOptions())).
		Estimate(context.Background(), []types.LineItem{resistor()})
	require.NoError(t, err)
	assert.Equal(t, 0, mock.ClassifyCalls())
}

func TestPriceCheckWarnsOnVariance(t *testing.T) {
	mock := provider.NewMock()
	mock.CheckPriceFunc = func(ctx context.Context, q provider.PriceQuery) (types.PriceReasonablenessResult, types.Usage, error) {
		return types.PriceReasonablenessResult{
			ExpectedLow:     dec("0.05"),
			ExpectedHigh:    dec("0.15"),
			VariancePercent: 5000,
			IsReasonable:    false,
			Suggestion:      "check the part number",
			Confidence:      0.8,
		}, types.Usage{}, nil
	}
	opts := enrichment.DefaultOptions()
	opts.Obsolescence = false

	items := []types.LineItem{
		{ReferenceDesignator: "U1", Quantity: 1, MPN: "STM32F103C8T6", Description: "MCU", LineNumber: 1},
		{ReferenceDesignator: "U5", Quantity: 1, MPN: "stm32f103c8t6", Description: "MCU", LineNumber: 2},
	}
	est, err := newEstimator(t, newOrchestrator(t, mock, opts)).Estimate(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, mock.CheckPriceCalls())
	require.Len(t, est.Warnings, 2)
	assert.True(t, strings.HasPrefix(est.Warnings[0], "U1: "), est.Warnings[0])
	assert.Contains(t, est.Warnings[0], "5000%")
	assert.Contains(t, est.Warnings[0], "check the part number")
	assert.True(t, strings.HasPrefix(est.Warnings[1], "U5: "))
	assert.Len(t, est.Components[0].Warnings, 1)
	assert.Equal(t, types.EnrichmentCoverage{Requested: 1, Completed: 1}, est.Coverage[capPriceCheck])
}

func TestObsolescenceWarningsAndNotes(t *testing.T) {
	mock := provider.NewMock()
	mock.CheckObsolescenceFunc = func(ctx context.Context, item types.LineItem) (types.ObsolescenceResult, types.Usage, error) {
		res := types.ObsolescenceResult{MPN: item.NormalizedMPN(), Risk: types.RiskLow, Lifecycle: types.LifecycleActive}
		switch item.NormalizedMPN() {
		case "STM32F103C8T6":
			res.Risk, res.Lifecycle = types.RiskObsolete, types.LifecycleEOL
			res.Alternatives = []types.Alternative{{MPN: "STM32F103CBT6"}, {MPN: "GD32F103C8T6"}}
		case "GRM188R71C104KA01D":
			res.Risk = types.RiskMedium
		}
		return res, types.Usage{}, nil
	}
	opts := enrichment.DefaultOptions()
	opts.PriceCheck = false

	est, err := newEstimator(t, newOrchestrator(t, mock, opts)).Estimate(context.Background(), mixedBOM())
	require.NoError(t, err)

	// J1 and M1 carry no part number
	assert.Equal(t, 3, mock.CheckObsolescenceCalls())

	u1, _ := est.Component("U1")
	require.Len(t, u1.Warnings, 1)
	assert.Contains(t, u1.Warnings[0], "obsolescence risk obsolete")
	assert.True(t, hasNote(u1.Notes, "alternatives for STM32F103C8T6: STM32F103CBT6, GD32F103C8T6"))

	c1, _ := est.Component("C1,C2")
	assert.Empty(t, c1.Warnings)
	assert.True(t, hasNote(c1.Notes, "risk medium"))

	r1, _ := est.Component("R1,R2,R3,R4")
	assert.Empty(t, r1.Warnings)
	assert.Equal(t, 3, est.Coverage[capObsolescence].Completed)
}

func TestFailingEnrichmentMatchesDeterministic(t *testing.T) {
	baseline, err := newEstimator(t, nil).Estimate(context.Background(), mixedBOM())
	require.NoError(t, err)

	tests := map[string]error{
		"transient": errors.Transport("upstream 503", nil),
		"parse":     errors.Parse("missing category", nil),
		"auth":      errors.Auth("invalid api key", nil),
	}
	for name, failure := range tests {
		t.Run(name, func(t *testing.T) {
			mock := provider.NewMock()
			mock.ClassifyFunc = func(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error) {
				return types.ClassificationResult{}, types.Usage{}, failure
			}
			mock.CheckPriceFunc = func(ctx context.Context, q provider.PriceQuery) (types.PriceReasonablenessResult, types.Usage, error) {
				return types.PriceReasonablenessResult{}, types.Usage{}, failure
			}
			mock.CheckObsolescenceFunc = func(ctx context.Context, item types.LineItem) (types.ObsolescenceResult, types.Usage, error) {
				return types.ObsolescenceResult{}, types.Usage{}, failure
			}

			est, err := newEstimator(t, newOrchestrator(t, mock, enrichment.DefaultOptions())).Estimate(context.Background(), mixedBOM())
			require.NoError(t, err)

			tiersEqual(t, baseline.Tiers, est.Tiers)
			for i := range baseline.Components {
				assert.Equal(t, baseline.Components[i].Category, est.Components[i].Category)
				bandEqual(t, baseline.Components[i].UnitPrice, est.Components[i].UnitPrice)
			}
			assert.True(t, est.IsDegraded())
		})
	}
}

func TestAuthFailureWarnsOnce(t *testing.T) {
	mock := provider.NewMock()
	mock.ClassifyFunc = func(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error) {
		return types.ClassificationResult{}, types.Usage{}, errors.Auth("401 invalid key sk-abcdefghijklmnopqrstuvwx", nil)
	}
	orch := newOrchestrator(t, mock, enrichment.DefaultOptions())
	est, err := newEstimator(t, orch).Estimate(context.Background(), mixedBOM())
	require.NoError(t, err)

	count := 0
	for _, w := range est.Warnings {
		if strings.Contains(w, "credentials") {
			count++
		}
		assert.NotContains(t, w, "sk-abcdefghijklmnopqrstuvwx")
	}
	assert.Equal(t, 1, count)
	assert.True(t, orch.AuthFailed())
	// disabled after the first rejection, so no price or lifecycle calls
	assert.Equal(t, 0, mock.CheckPriceCalls())
	assert.Equal(t, 0, mock.CheckObsolescenceCalls())
}

func TestEnrichmentTimeoutDegrades(t *testing.T) {
	mock := provider.NewMock()
	mock.ClassifyFunc = func(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error) {
		<-ctx.Done()
		return types.ClassificationResult{}, types.Usage{}, ctx.Err()
	}
	opts := enrichment.DefaultOptions()
	opts.PriceCheck = false
	opts.Obsolescence = false

	e := newEstimator(t, newOrchestrator(t, mock, opts), func(o *Options) { o.EnrichmentTimeout = 20 * time.Millisecond })
	est, err := e.Estimate(context.Background(), mixedBOM())
	require.NoError(t, err)

	assert.True(t, est.IsDegraded())
	assert.True(t, hasNote(est.DegradedNotes, "timed out"))
	m1, _ := est.Component("M1")
	assert.Equal(t, types.CategoryUnknown, m1.Category)
}

func TestTiersOrderedAndMonotonic(t *testing.T) {
	est, err := newEstimator(t, nil, func(o *Options) { o.BoardQuantity = 25 }).Estimate(context.Background(), mixedBOM())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 10, 25, 100, 1000, 10000}, volumesOf(est))
	assert.Equal(t, 25, est.Metadata.BoardQuantity)

	u1, _ := est.Component("U1")
	assert.Equal(t, 25, u1.UnitPrice.Volume)

	for i, tier := range est.Tiers {
		for _, b := range []types.PriceBand{tier.Components, tier.Overhead, tier.PerBoard, tier.PerRun} {
			assert.True(t, b.IsOrdered(), "volume %d: %s", tier.Volume, b)
		}
		if i == 0 {
			continue
		}
		prev := est.Tiers[i-1]
		assert.True(t, tier.PerBoard.Typical.LessThanOrEqual(prev.PerBoard.Typical), "per board rose at %d", tier.Volume)
		assert.True(t, tier.Components.Typical.LessThanOrEqual(prev.Components.Typical), "components rose at %d", tier.Volume)
	}

	for _, c := range est.Components {
		for i := 1; i < len(c.Tiers); i++ {
			assert.True(t, c.Tiers[i].UnitCost.Typical.LessThanOrEqual(c.Tiers[i-1].UnitCost.Typical), c.ReferenceDesignator)
		}
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	am, err := assembly.NewModel(assembly.DefaultRates())
	require.NoError(t, err)

	_, err = New(pricing.MustDefault(), am, nil, Options{BoardQuantity: -1}, nil)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
	_, err = New(pricing.MustDefault(), am, nil, Options{ConfidenceThreshold: 1.5}, nil)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
	_, err = New(pricing.MustDefault(), am, nil, Options{Volumes: []int{0}}, nil)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
	_, err = New(nil, am, nil, DefaultOptions(), nil)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}

func TestPhaseOrder(t *testing.T) {
	tr := tracker{logger: zap.NewNop()}
	require.NoError(t, tr.enter(PhaseClassifying))
	require.NoError(t, tr.enter(PhaseAssembly))
	assert.Error(t, tr.enter(PhasePricing))
	assert.Error(t, tr.guard(PhaseAggregating))
	assert.NoError(t, tr.guard(PhasePricing))
	assert.Equal(t, "assembly", tr.phase.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

func hasNote(notes []string, sub string) bool {
	for _, n := range notes {
		if strings.Contains(n, sub) {
			return true
		}
	}
	return false
}
