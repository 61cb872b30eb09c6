package pricing

import (
	"github.com/shopspring/decimal"

	"pcb-cost/core/types"
)

// Quote is a priced part
type Quote struct {
	Band types.PriceBand

	// Fallback is set when the category had no table entry
	Fallback bool

	// Spread is the confidence widening factor applied
	Spread decimal.Decimal

	// unit is the category band times the package multiplier at quantity one
	unit     BaseBand
	curve    Curve
	currency types.Currency
}

// At returns the unit band at quantity qty. The quantity-one band is scaled
// by the curve multiplier at qty, clamped to the floor and rounded once, so
// every point is non-increasing in qty.
func (q Quote) At(qty int) types.PriceBand {
	if qty < 1 {
		qty = 1
	}
	m := decimal.NewFromFloat(q.curve.Multiplier(qty))
	band := types.PriceBand{
		Low:      q.curve.clamp(q.unit.Low.Mul(m).Div(q.Spread)),
		Typical:  q.curve.clamp(q.unit.Typical.Mul(m)),
		High:     q.curve.clamp(q.unit.High.Mul(m).Mul(q.Spread)),
		Currency: q.currency,
		Volume:   qty,
	}
	return band.Round(UnitPlaces)
}

// Model prices parts from Tables
type Model struct {
	tables Tables
}

// NewModel creates a model. Tables are validated so pricing never fails.
func NewModel(tables Tables) (*Model, error) {
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return &Model{tables: tables}, nil
}

// MustDefault returns a model over DefaultTables
func MustDefault() *Model {
	m, err := NewModel(DefaultTables())
	if err != nil {
		panic(err)
	}
	return m
}

// Tables returns the model's tables
func (m *Model) Tables() Tables {
	return m.tables
}

// Curve returns the volume discount curve
func (m *Model) Curve() Curve {
	return m.tables.Curve
}

// Currency returns the pricing currency
func (m *Model) Currency() types.Currency {
	return m.tables.Currency
}

// Price returns the unit band for a part, anchored at the largest
// breakpoint not above volume. Lower confidence widens the band:
// low is divided and high multiplied by 1 + widening * (1 - confidence).
func (m *Model) Price(category types.Category, pkg types.PackageType, confidence float64, volume int) Quote {
	t := m.tables

	b, ok := t.Categories[category]
	fallback := !ok
	if fallback {
		b = BaseBand{
			Low:     t.Fallback.Low.Div(t.FallbackWidening),
			Typical: t.Fallback.Typical,
			High:    t.Fallback.High.Mul(t.FallbackWidening),
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	one := decimal.NewFromInt(1)
	spread := one.Add(t.UncertaintyWidening.Mul(one.Sub(decimal.NewFromFloat(confidence))))

	mult := t.multiplier(pkg)
	anchor := t.Curve.Anchor(volume)
	discount := t.Curve.Multipliers[indexOf(t.Curve.Breakpoints, anchor)]

	scale := mult.Mul(discount)
	band := types.PriceBand{
		Low:      t.Curve.clamp(b.Low.Mul(scale).Div(spread)),
		Typical:  t.Curve.clamp(b.Typical.Mul(scale)),
		High:     t.Curve.clamp(b.High.Mul(scale).Mul(spread)),
		Currency: t.Currency,
		Volume:   anchor,
	}
	return Quote{
		Band:     band.Round(UnitPlaces),
		Fallback: fallback,
		Spread:   spread,
		unit:     BaseBand{Low: b.Low.Mul(mult), Typical: b.Typical.Mul(mult), High: b.High.Mul(mult)},
		curve:    t.Curve,
		currency: t.Currency,
	}
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return 0
}
