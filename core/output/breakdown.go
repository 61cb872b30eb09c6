package output

import (
	"sort"

	"github.com/shopspring/decimal"

	"pcb-cost/core/types"
)

// CategoryCost aggregates the per-board part cost of one category
type CategoryCost struct {
	Category types.Category  `json:"category"`
	Parts    int             `json:"parts"`
	Total    decimal.Decimal `json:"total"`
	Percent  float64         `json:"percent"`
}

// CostDriver is one line ranked by per-board cost
type CostDriver struct {
	ReferenceDesignator string          `json:"reference_designator"`
	MPN                 string          `json:"mpn,omitempty"`
	Category            types.Category  `json:"category"`
	Quantity            int             `json:"quantity"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	Total               decimal.Decimal `json:"total"`
	Percent             float64         `json:"percent"`
}

// lineTotal is the typical per-board cost of c at the run volume
func lineTotal(c types.ComponentCostEstimate) decimal.Decimal {
	if c.Excluded {
		return decimal.Zero
	}
	return c.UnitPrice.Typical.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

func percentOf(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	p, _ := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	return p
}

func partsTotal(est *types.CostEstimate) decimal.Decimal {
	total := decimal.Zero
	for _, c := range est.Components {
		total = total.Add(lineTotal(c))
	}
	return total
}

// CostByCategory groups placed lines by category, most expensive first.
// Ties keep category order.
func CostByCategory(est *types.CostEstimate) []CategoryCost {
	byCat := make(map[types.Category]*CategoryCost)
	for _, c := range est.Components {
		if c.Excluded {
			continue
		}
		cc, ok := byCat[c.Category]
		if !ok {
			cc = &CategoryCost{Category: c.Category, Total: decimal.Zero}
			byCat[c.Category] = cc
		}
		cc.Parts += c.Quantity
		cc.Total = cc.Total.Add(lineTotal(c))
	}

	total := partsTotal(est)
	out := make([]CategoryCost, 0, len(byCat))
	for _, cc := range byCat {
		cc.Percent = percentOf(cc.Total, total)
		out = append(out, *cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// TopCostDrivers returns up to limit placed lines by per-board cost
func TopCostDrivers(est *types.CostEstimate, limit int) []CostDriver {
	total := partsTotal(est)
	out := make([]CostDriver, 0, len(est.Components))
	for _, c := range est.Components {
		if c.Excluded {
			continue
		}
		t := lineTotal(c)
		out = append(out, CostDriver{
			ReferenceDesignator: c.ReferenceDesignator,
			MPN:                 c.MPN,
			Category:            c.Category,
			Quantity:            c.Quantity,
			UnitCost:            c.UnitPrice.Typical,
			Total:               t,
			Percent:             percentOf(t, total),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total.GreaterThan(out[j].Total) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
