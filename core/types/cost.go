// Package types - Cost estimate types
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierLine is one line's cost at a volume tier, per board
type TierLine struct {
	// Volume is the number of boards built
	Volume int `json:"volume"`

	// UnitCost is the per-part band at Volume
	UnitCost PriceBand `json:"unit_cost"`

	// LineTotal is UnitCost times the per-board quantity; zero when excluded
	LineTotal PriceBand `json:"line_total"`
}

// ComponentCostEstimate is the priced view of one line item
type ComponentCostEstimate struct {
	ReferenceDesignator string `json:"reference_designator"`
	Quantity            int    `json:"quantity"`
	MPN                 string `json:"mpn,omitempty"`
	Manufacturer        string `json:"manufacturer,omitempty"`
	Description         string `json:"description,omitempty"`
	LineNumber          int    `json:"line_number,omitempty"`

	// Category is the final category, possibly AI assisted
	Category       Category             `json:"category"`
	Classification ClassificationResult `json:"classification"`

	Package      PackageType  `json:"package"`
	AssemblyTier AssemblyTier `json:"assembly_tier"`

	// UnitPrice is the band at the requested volume, Quantity times boards
	UnitPrice PriceBand `json:"unit_price"`

	// Tiers holds the line totals at each volume tier
	Tiers []TierLine `json:"tiers"`

	// Excluded is set for DNP, zero quantity and invalid items
	Excluded        bool   `json:"excluded"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`

	Notes    []string `json:"notes,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Tier returns the tier line at volume
func (c ComponentCostEstimate) Tier(volume int) (TierLine, bool) {
	for _, t := range c.Tiers {
		if t.Volume == volume {
			return t, true
		}
	}
	return TierLine{}, false
}

// TierTotal aggregates every line at one volume tier
type TierTotal struct {
	// Volume is the number of boards built
	Volume int `json:"volume"`

	// Components is the per-board component band
	Components PriceBand `json:"components"`

	// Assembly is the per-board assembly cost
	Assembly decimal.Decimal `json:"assembly"`

	// Overhead is the per-board overhead band
	Overhead PriceBand `json:"overhead"`

	// PerBoard is components + assembly + overhead
	PerBoard PriceBand `json:"per_board"`

	// PerRun is PerBoard times Volume
	PerRun PriceBand `json:"per_run"`
}

// AssemblyBreakdown summarizes placements
type AssemblyBreakdown struct {
	// PlacementsByTier counts placements per board for each assembly tier
	PlacementsByTier map[AssemblyTier]int `json:"placements_by_tier"`

	// TotalPlacements is the sum of PlacementsByTier
	TotalPlacements int `json:"total_placements"`

	// UniqueParts counts distinct identities among placed lines
	UniqueParts int `json:"unique_parts"`

	// PlacementCost is the per-board placement cost before setup amortization
	PlacementCost decimal.Decimal `json:"placement_cost"`
}

// EnrichmentCoverage counts enrichment outcomes for one capability
type EnrichmentCoverage struct {
	Requested   int `json:"requested"`
	Completed   int `json:"completed"`
	FromCache   int `json:"from_cache"`
	Unavailable int `json:"unavailable"`
}

// EstimateMetadata describes a run
type EstimateMetadata struct {
	RunID             string    `json:"run_id"`
	Currency          Currency  `json:"currency"`
	GeneratedAt       time.Time `json:"generated_at"`
	EnrichmentEnabled bool      `json:"enrichment_enabled"`
	Provider          string    `json:"provider"`
	BoardQuantity     int       `json:"board_quantity"`
	LineCount         int       `json:"line_count"`
	Duration          string    `json:"duration,omitempty"`
}

// CostEstimate is the immutable result of one run
type CostEstimate struct {
	Components []ComponentCostEstimate `json:"components"`
	Tiers      []TierTotal             `json:"tiers"`
	Assembly   AssemblyBreakdown       `json:"assembly"`

	Warnings      []string `json:"warnings,omitempty"`
	Notes         []string `json:"notes,omitempty"`
	DegradedNotes []string `json:"degraded_notes,omitempty"`

	// Coverage is keyed by capability: classification, price_check, obsolescence
	Coverage map[string]EnrichmentCoverage `json:"coverage,omitempty"`

	Metadata EstimateMetadata `json:"metadata"`
}

// Tier returns the total at volume
func (e *CostEstimate) Tier(volume int) (TierTotal, bool) {
	for _, t := range e.Tiers {
		if t.Volume == volume {
			return t, true
		}
	}
	return TierTotal{}, false
}

// Component returns the estimate for a reference designator
func (e *CostEstimate) Component(ref string) (ComponentCostEstimate, bool) {
	for _, c := range e.Components {
		if c.ReferenceDesignator == ref {
			return c, true
		}
	}
	return ComponentCostEstimate{}, false
}

// IsDegraded reports whether enrichment fell back for any reason
func (e *CostEstimate) IsDegraded() bool {
	return len(e.DegradedNotes) > 0
}
