package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pcb-cost/core/classify"
	"pcb-cost/core/enrichment"
	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
)

// run is the state of one Estimate call
type run struct {
	*Estimator
	tracker

	items   []types.LineItem
	boards  int
	volumes []int

	breakdown types.AssemblyBreakdown
	authSeen  bool

	est    *types.CostEstimate
	logger *zap.Logger
}

// requested returns the part count priced for line i at the run's board
// quantity. Excluded lines are priced as one placement so they still carry
// a unit price.
func (r *run) requested(i int, boards int) int {
	qty := r.items[i].Quantity
	if qty < 1 {
		qty = 1
	}
	return qty * boards
}

func (r *run) warn(c *types.ComponentCostEstimate, msg string) {
	c.Warnings = append(c.Warnings, msg)
	r.est.Warnings = append(r.est.Warnings, msg)
}

func label(item types.LineItem) string {
	if ref := strings.TrimSpace(item.ReferenceDesignator); ref != "" {
		return ref
	}
	return fmt.Sprintf("line %d", item.LineNumber)
}

// classify validates every item, classifies it deterministically and asks
// the provider about the ones below the confidence threshold
func (r *run) classify(ctx context.Context) error {
	var pending []int

	for i, item := range r.items {
		c := &r.est.Components[i]
		*c = types.ComponentCostEstimate{
			ReferenceDesignator: item.ReferenceDesignator,
			Quantity:            item.Quantity,
			MPN:                 item.MPN,
			Manufacturer:        item.Manufacturer,
			Description:         item.Description,
			LineNumber:          item.LineNumber,
		}

		if err := item.Validate(); err != nil {
			c.Excluded = true
			c.ExclusionReason = "invalid: " + validationMessage(err)
			r.warn(c, fmt.Sprintf("%s: excluded, %s", label(item), validationMessage(err)))
		} else if item.DNP {
			c.Excluded = true
			c.ExclusionReason = "do not place"
		} else if item.Quantity == 0 {
			c.Excluded = true
			c.ExclusionReason = "zero quantity"
		}

		c.Classification = r.classifier.Classify(item)
		if !c.Excluded && c.Classification.Confidence < r.opts.ConfidenceThreshold {
			pending = append(pending, i)
		}
	}

	if len(pending) > 0 && r.enrichment.Enabled() && r.enrichment.FeatureEnabled(types.KindClassification) {
		r.classifyWithProvider(ctx, pending)
	} else {
		for _, i := range pending {
			c := &r.est.Components[i]
			c.Notes = append(c.Notes, fmt.Sprintf("low confidence classification (%.2f): %s", c.Classification.Confidence, c.Classification.Reasoning))
		}
	}

	for i, item := range r.items {
		c := &r.est.Components[i]
		c.Category = c.Classification.Category
		c.Package = classify.ClassifyPackage(item, c.Category)
		if strings.TrimSpace(item.Package) == "" && c.Classification.Package.IsValid() {
			c.Package = c.Classification.Package
		}
		c.AssemblyTier = types.TierFor(c.Package)
	}
	return nil
}

// classifyWithProvider asks once per distinct identity and keeps the
// provider's answer only when it is strictly more confident
func (r *run) classifyWithProvider(ctx context.Context, pending []int) {
	groups, order := groupByIdentity(r.items, pending)
	asks := make([]types.LineItem, len(order))
	for j, id := range order {
		asks[j] = r.items[groups[id][0]]
	}

	cov := newCoverage(capClassification)
	results := r.enrichment.BatchClassify(ctx, asks)
	for j, res := range results {
		record(cov, res)
		for _, i := range groups[order[j]] {
			r.applyClassification(&r.est.Components[i], res)
		}
	}
	r.finishCoverage(cov)
}

func (r *run) applyClassification(c *types.ComponentCostEstimate, res enrichment.Result[types.ClassificationResult]) {
	det := c.Classification
	if !res.Available {
		c.Notes = append(c.Notes, fmt.Sprintf("low confidence classification (%.2f) kept; provider unavailable (%s)", det.Confidence, res.Reason))
		return
	}

	ai := res.Value
	if ai.Category.IsValid() && ai.Category.IsResolved() && ai.Confidence > det.Confidence {
		ai.Source = types.SourceAI
		ai.Rule = types.RuleAI
		c.Classification = ai
		c.Notes = append(c.Notes, fmt.Sprintf("classified as %s by provider (%.2f) over %s (%.2f)", ai.Category, ai.Confidence, det.Category, det.Confidence))
		return
	}
	c.Notes = append(c.Notes, fmt.Sprintf("kept deterministic %s (%.2f); provider suggested %s (%.2f)", det.Category, det.Confidence, ai.Category, ai.Confidence))
}

// price computes each line's unit band at the run's volume and at every
// reported tier
func (r *run) price() error {
	currency := r.pricing.Currency()

	for i := range r.items {
		c := &r.est.Components[i]
		q := r.pricing.Price(c.Category, c.Package, c.Classification.Confidence, r.requested(i, r.boards))
		c.UnitPrice = q.At(r.requested(i, r.boards))
		if q.Fallback {
			c.Notes = append(c.Notes, fmt.Sprintf("no pricing table for %s, fallback band used", c.Category))
		}

		c.Tiers = make([]types.TierLine, len(r.volumes))
		for t, v := range r.volumes {
			unit := q.At(r.requested(i, v))
			total := types.ZeroBand(currency, v)
			if !c.Excluded {
				total = unit.MulInt(c.Quantity).AtVolume(v)
			}
			c.Tiers[t] = types.TierLine{Volume: v, UnitCost: unit, LineTotal: total}
		}
	}
	return nil
}

func (r *run) assemble() error {
	r.breakdown = r.assembly.Breakdown(r.est.Components)
	r.est.Assembly = r.breakdown
	return nil
}

// aggregate sums line totals at every tier
func (r *run) aggregate() error {
	if err := r.guard(PhaseAssembly); err != nil {
		return err
	}
	currency := r.pricing.Currency()

	r.est.Tiers = make([]types.TierTotal, len(r.volumes))
	for t, v := range r.volumes {
		components := types.ZeroBand(currency, v)
		for i := range r.est.Components {
			components = components.Add(r.est.Components[i].Tiers[t].LineTotal)
		}
		asm := r.assembly.PerBoard(r.breakdown, v)
		overhead := r.assembly.Overhead(components, v)
		perBoard := components.AddFlat(asm).Add(overhead)

		r.est.Tiers[t] = types.TierTotal{
			Volume:     v,
			Components: components.Round(types.MoneyPlaces),
			Assembly:   asm.Round(types.MoneyPlaces),
			Overhead:   overhead.Round(types.MoneyPlaces),
			PerBoard:   perBoard.Round(types.MoneyPlaces),
			PerRun:     perBoard.MulInt(v).Round(types.MoneyPlaces),
		}
	}
	return nil
}

func validationMessage(err error) string {
	if e, ok := errors.As(err); ok {
		return e.Message
	}
	return err.Error()
}
