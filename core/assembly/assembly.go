// Package assembly computes per-board placement, setup and overhead costs.
package assembly

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
)

// Places is the rounding applied to per-board amounts
const Places = 6

// Rates holds the assembly and overhead parameters
type Rates struct {
	// UnitCost is the placement cost per part for each tier
	UnitCost map[types.AssemblyTier]decimal.Decimal

	// SetupCost is the one-time line setup, amortized over the run
	SetupCost decimal.Decimal

	// FeederSetupCost is charged per unique part on small runs
	FeederSetupCost decimal.Decimal

	// SurchargeMaxVolume is the largest run that pays the feeder surcharge
	SurchargeMaxVolume int

	// NRECost is fixed engineering cost, amortized over the run
	NRECost decimal.Decimal

	// ProcurementPercent of component cost is added as overhead
	ProcurementPercent decimal.Decimal
}

// DefaultRates returns the compiled-in rates
func DefaultRates() Rates {
	return Rates{
		UnitCost: map[types.AssemblyTier]decimal.Decimal{
			types.TierSmallSMD:    decimal.RequireFromString("0.01"),
			types.TierLargeSMD:    decimal.RequireFromString("0.02"),
			types.TierFinePitch:   decimal.RequireFromString("0.08"),
			types.TierBGA:         decimal.RequireFromString("0.25"),
			types.TierThroughHole: decimal.RequireFromString("0.05"),
			types.TierConnector:   decimal.RequireFromString("0.04"),
		},
		SetupCost:          decimal.NewFromInt(150),
		FeederSetupCost:    decimal.RequireFromString("2.50"),
		SurchargeMaxVolume: 100,
		NRECost:            decimal.NewFromInt(100),
		ProcurementPercent: decimal.NewFromInt(5),
	}
}

// Validate rejects negative rates and unknown tiers
func (r Rates) Validate() error {
	for _, tier := range types.AssemblyTiers {
		c, ok := r.UnitCost[tier]
		if !ok {
			return errors.Config(fmt.Sprintf("assembly tier %s has no unit cost", tier), nil)
		}
		if c.IsNegative() {
			return errors.Config(fmt.Sprintf("assembly tier %s unit cost %s is negative", tier, c), nil)
		}
	}
	if len(r.UnitCost) != len(types.AssemblyTiers) {
		return errors.Config("assembly rates name an unknown tier", nil)
	}
	if r.SetupCost.IsNegative() || r.FeederSetupCost.IsNegative() || r.NRECost.IsNegative() {
		return errors.Config("assembly setup, feeder and NRE costs must not be negative", nil)
	}
	if r.SurchargeMaxVolume < 0 {
		return errors.Config("surcharge_max_volume must not be negative", nil)
	}
	if r.ProcurementPercent.IsNegative() || r.ProcurementPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.Config(fmt.Sprintf("procurement_percent %s must be within [0, 100]", r.ProcurementPercent), nil)
	}
	return nil
}

// Model applies Rates to priced lines
type Model struct {
	rates Rates
}

// NewModel validates rates and returns a model
func NewModel(rates Rates) (*Model, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Model{rates: rates}, nil
}

// Rates returns the model's rates
func (m *Model) Rates() Rates {
	return m.rates
}

// Breakdown counts placements per tier over lines that are placed
func (m *Model) Breakdown(lines []types.ComponentCostEstimate) types.AssemblyBreakdown {
	b := types.AssemblyBreakdown{
		PlacementsByTier: make(map[types.AssemblyTier]int, len(types.AssemblyTiers)),
		PlacementCost:    decimal.Zero,
	}
	for _, tier := range types.AssemblyTiers {
		b.PlacementsByTier[tier] = 0
	}

	seen := make(map[string]struct{})
	for _, line := range lines {
		if line.Excluded || line.Quantity <= 0 {
			continue
		}
		tier := line.AssemblyTier
		if tier == "" {
			tier = types.TierFor(line.Package)
		}
		b.PlacementsByTier[tier] += line.Quantity
		b.TotalPlacements += line.Quantity
		b.PlacementCost = b.PlacementCost.Add(m.rates.UnitCost[tier].Mul(decimal.NewFromInt(int64(line.Quantity))))
		seen[identity(line)] = struct{}{}
	}
	b.UniqueParts = len(seen)
	return b
}

// PerBoard returns the assembly cost of one board in a run of volume boards:
// placement plus amortized setup, plus the feeder surcharge on small runs.
func (m *Model) PerBoard(b types.AssemblyBreakdown, volume int) decimal.Decimal {
	if volume < 1 {
		volume = 1
	}
	if b.TotalPlacements == 0 {
		return decimal.Zero
	}
	v := decimal.NewFromInt(int64(volume))
	cost := b.PlacementCost.Add(m.rates.SetupCost.Div(v))
	if volume <= m.rates.SurchargeMaxVolume {
		feeders := m.rates.FeederSetupCost.Mul(decimal.NewFromInt(int64(b.UniqueParts)))
		cost = cost.Add(feeders.Div(v))
	}
	return cost.Round(Places)
}

// Overhead returns the per-board overhead band: procurement percentage of
// each component point plus NRE amortized over volume.
func (m *Model) Overhead(components types.PriceBand, volume int) types.PriceBand {
	if volume < 1 {
		volume = 1
	}
	pct := m.rates.ProcurementPercent.Div(decimal.NewFromInt(100))
	nre := m.rates.NRECost.Div(decimal.NewFromInt(int64(volume)))
	return components.Mul(pct).AddFlat(nre).AtVolume(volume).Round(Places)
}

func identity(c types.ComponentCostEstimate) string {
	item := types.LineItem{
		ReferenceDesignator: c.ReferenceDesignator,
		MPN:                 c.MPN,
		Description:         c.Description,
	}
	return item.Identity()
}
