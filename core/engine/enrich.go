package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"pcb-cost/core/enrichment"
	"pcb-cost/core/provider"
	"pcb-cost/core/types"
)

// Coverage keys
const (
	capClassification = "classification"
	capPriceCheck     = "price_check"
	capObsolescence   = "obsolescence"
)

type coverage struct {
	name    string
	counts  types.EnrichmentCoverage
	reasons map[enrichment.Reason]int
}

func newCoverage(name string) *coverage {
	return &coverage{name: name, reasons: make(map[enrichment.Reason]int)}
}

func record[T any](c *coverage, r enrichment.Result[T]) {
	c.counts.Requested++
	switch {
	case r.Available && r.FromCache:
		c.counts.Completed++
		c.counts.FromCache++
	case r.Available:
		c.counts.Completed++
	default:
		c.counts.Unavailable++
		c.reasons[r.Reason]++
	}
}

// finishCoverage stores the counters and notes every degrading reason
func (r *run) finishCoverage(c *coverage) {
	r.est.Coverage[c.name] = c.counts

	reasons := make([]string, 0, len(c.reasons))
	degraded := 0
	for reason, n := range c.reasons {
		if reason == enrichment.ReasonAuth {
			r.authSeen = true
		}
		if !reason.Degrades() {
			continue
		}
		degraded += n
		reasons = append(reasons, fmt.Sprintf("%s x%d", reason, n))
	}
	if degraded == 0 {
		return
	}
	sort.Strings(reasons)
	r.est.DegradedNotes = append(r.est.DegradedNotes, fmt.Sprintf(
		"%s: %d of %d requests unavailable (%s); deterministic values kept",
		c.name, degraded, c.counts.Requested, strings.Join(reasons, ", ")))
	r.logger.Warn("enrichment degraded", zap.String("capability", c.name), zap.Int("unavailable", degraded))
}

// enriching reports whether any post-pricing enrichment will run
func (r *run) enriching() bool {
	return r.enrichment.Enabled() &&
		(r.enrichment.FeatureEnabled(types.KindPriceCheck) || r.enrichment.FeatureEnabled(types.KindObsolescence))
}

// groupByIdentity returns the indexes of each distinct identity among idx,
// plus the identities in first-seen order
func groupByIdentity(items []types.LineItem, idx []int) (map[string][]int, []string) {
	groups := make(map[string][]int)
	var order []string
	for _, i := range idx {
		id := items[i].Identity()
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], i)
	}
	return groups, order
}

// withMPN returns the placed lines that carry a part number
func (r *run) withMPN() []int {
	var idx []int
	for i, item := range r.items {
		if r.est.Components[i].Excluded || item.NormalizedMPN() == "" {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

func (r *run) enrich(ctx context.Context) error {
	groups, order := groupByIdentity(r.items, r.withMPN())
	if len(order) == 0 {
		return nil
	}
	if r.enrichment.FeatureEnabled(types.KindPriceCheck) {
		r.checkPrices(ctx, groups, order)
	}
	if r.enrichment.FeatureEnabled(types.KindObsolescence) {
		r.checkObsolescence(ctx, groups, order)
	}
	return nil
}

// checkPrices submits one price per distinct part number. The first line
// carrying the part supplies the band and volume.
func (r *run) checkPrices(ctx context.Context, groups map[string][]int, order []string) {
	queries := make([]provider.PriceQuery, len(order))
	for j, id := range order {
		i := groups[id][0]
		c := r.est.Components[i]
		queries[j] = provider.PriceQuery{
			Item:     r.items[i],
			Category: c.Category,
			Package:  c.Package,
			Band:     c.UnitPrice,
			Quantity: r.requested(i, r.boards),
		}
	}

	cov := newCoverage(capPriceCheck)
	for j, res := range r.enrichment.BatchCheckPrices(ctx, queries) {
		record(cov, res)
		if !res.Available || res.Value.IsReasonable {
			continue
		}
		p := res.Value
		for _, i := range groups[order[j]] {
			c := &r.est.Components[i]
			msg := fmt.Sprintf("%s: unit price %s may be unreasonable (variance %.0f%%, expected %s..%s)",
				label(r.items[i]), c.UnitPrice.Typical.StringFixed(types.MoneyPlaces), p.VariancePercent,
				p.ExpectedLow.StringFixed(types.MoneyPlaces), p.ExpectedHigh.StringFixed(types.MoneyPlaces))
			if p.Suggestion != "" {
				msg += ": " + p.Suggestion
			}
			r.warn(c, msg)
		}
	}
	r.finishCoverage(cov)
}

func (r *run) checkObsolescence(ctx context.Context, groups map[string][]int, order []string) {
	items := make([]types.LineItem, len(order))
	for j, id := range order {
		items[j] = r.items[groups[id][0]]
	}

	cov := newCoverage(capObsolescence)
	for j, res := range r.enrichment.BatchCheckObsolescence(ctx, items) {
		record(cov, res)
		if !res.Available {
			continue
		}
		o := res.Value
		for _, i := range groups[order[j]] {
			c := &r.est.Components[i]
			mpn := r.items[i].NormalizedMPN()
			switch o.Risk {
			case types.RiskHigh, types.RiskObsolete:
				r.warn(c, fmt.Sprintf("%s: %s obsolescence risk %s (lifecycle %s)", label(r.items[i]), mpn, o.Risk, o.Lifecycle))
			case types.RiskMedium:
				c.Notes = append(c.Notes, fmt.Sprintf("%s obsolescence risk medium (lifecycle %s)", mpn, o.Lifecycle))
			}
			if len(o.Alternatives) > 0 {
				alts := make([]string, len(o.Alternatives))
				for k, a := range o.Alternatives {
					alts[k] = a.MPN
				}
				c.Notes = append(c.Notes, fmt.Sprintf("alternatives for %s: %s", mpn, strings.Join(alts, ", ")))
			}
		}
	}
	r.finishCoverage(cov)
}

// finishEnrichment adds the run-level auth warning and timeout note
func (r *run) finishEnrichment(ctx context.Context) {
	if r.authSeen || r.enrichment.AuthFailed() {
		r.est.Warnings = append(r.est.Warnings,
			"enrichment provider rejected its credentials; AI enrichment disabled, deterministic estimate only")
	}
	if r.est.Metadata.EnrichmentEnabled && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.est.DegradedNotes = append(r.est.DegradedNotes, fmt.Sprintf(
			"enrichment timed out after %s; unfinished requests use deterministic data", r.opts.EnrichmentTimeout))
	}
}

// finishNotes records run-level facts: deterministic-only mode, enrichment
// that was requested but could not be wired, and excluded lines
func (r *run) finishNotes() {
	if reason := r.opts.EnrichmentUnavailable; reason != "" {
		r.est.DegradedNotes = append(r.est.DegradedNotes, fmt.Sprintf(
			"enrichment requested but unavailable (%s); coverage limited to deterministic rules", reason))
	}
	if !r.est.Metadata.EnrichmentEnabled {
		r.est.Notes = append(r.est.Notes, "deterministic estimate only; no AI enrichment applied")
	}

	excluded := 0
	for _, c := range r.est.Components {
		if c.Excluded {
			excluded++
		}
	}
	if excluded > 0 {
		r.est.Notes = append(r.est.Notes, fmt.Sprintf(
			"%d of %d lines excluded from costing", excluded, len(r.est.Components)))
	}
}
