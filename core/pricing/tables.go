// Package pricing turns a classified part into a unit price band using
// table-driven category bases, package multipliers and a volume discount
// curve.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
)

// BaseBand is a quantity-one unit cost band
type BaseBand struct {
	Low     decimal.Decimal
	Typical decimal.Decimal
	High    decimal.Decimal
}

func base(low, typical, high string) BaseBand {
	return BaseBand{
		Low:     decimal.RequireFromString(low),
		Typical: decimal.RequireFromString(typical),
		High:    decimal.RequireFromString(high),
	}
}

// Validate checks 0 < low <= typical <= high
func (b BaseBand) Validate() error {
	if !b.Low.IsPositive() {
		return fmt.Errorf("low %s must be positive", b.Low)
	}
	if b.Low.GreaterThan(b.Typical) || b.Typical.GreaterThan(b.High) {
		return fmt.Errorf("band %s/%s/%s is not ordered", b.Low, b.Typical, b.High)
	}
	return nil
}

// Tables holds every pricing parameter
type Tables struct {
	Currency types.Currency

	// Categories maps a category to its quantity-one band
	Categories map[types.Category]BaseBand

	// Fallback prices categories absent from Categories
	Fallback BaseBand

	// FallbackWidening divides low and multiplies high of the fallback
	FallbackWidening decimal.Decimal

	// UncertaintyWidening scales the spread applied for low confidence
	UncertaintyWidening decimal.Decimal

	// PackageMultipliers scale the base band; missing entries are 1
	PackageMultipliers map[types.PackageType]decimal.Decimal

	// Curve is the volume discount curve
	Curve Curve
}

// DefaultBreakpoints are the order quantities prices are anchored at
var DefaultBreakpoints = []int{1, 10, 100, 1000, 10000}

// DefaultTables returns the compiled-in pricing tables
func DefaultTables() Tables {
	return Tables{
		Currency: types.CurrencyUSD,
		Categories: map[types.Category]BaseBand{
			types.CategoryResistor:    base("0.002", "0.01", "0.05"),
			types.CategoryCapacitor:   base("0.005", "0.02", "0.15"),
			types.CategoryInductor:    base("0.02", "0.10", "0.50"),
			types.CategoryIC:          base("0.20", "1.50", "10.00"),
			types.CategoryConnector:   base("0.10", "0.50", "3.00"),
			types.CategoryDiode:       base("0.01", "0.05", "0.30"),
			types.CategoryTransistor:  base("0.02", "0.10", "0.60"),
			types.CategoryLED:         base("0.02", "0.08", "0.40"),
			types.CategoryCrystal:     base("0.10", "0.40", "1.50"),
			types.CategorySwitch:      base("0.05", "0.30", "2.00"),
			types.CategoryRelay:       base("0.50", "1.50", "5.00"),
			types.CategoryFuse:        base("0.05", "0.20", "1.00"),
			types.CategoryTransformer: base("0.50", "2.00", "10.00"),
			types.CategorySensor:      base("0.30", "2.00", "12.00"),
			types.CategoryOther:       base("0.05", "0.25", "2.00"),
		},
		Fallback:            base("0.01", "0.10", "1.00"),
		FallbackWidening:    decimal.NewFromInt(2),
		UncertaintyWidening: decimal.RequireFromString("0.5"),
		PackageMultipliers: map[types.PackageType]decimal.Decimal{
			types.PackageSMDSmall:    decimal.RequireFromString("1.0"),
			types.PackageSMDMedium:   decimal.RequireFromString("1.0"),
			types.PackageSMDLarge:    decimal.RequireFromString("1.2"),
			types.PackageSOIC:        decimal.RequireFromString("1.0"),
			types.PackageQFP:         decimal.RequireFromString("1.5"),
			types.PackageQFN:         decimal.RequireFromString("1.3"),
			types.PackageBGA:         decimal.RequireFromString("2.5"),
			types.PackageThroughHole: decimal.RequireFromString("1.1"),
			types.PackageConnector:   decimal.RequireFromString("1.0"),
			types.PackageOther:       decimal.RequireFromString("1.0"),
			types.PackageUnknown:     decimal.RequireFromString("1.0"),
		},
		Curve: Curve{
			Breakpoints: append([]int(nil), DefaultBreakpoints...),
			Multipliers: []decimal.Decimal{
				decimal.RequireFromString("1.0"),
				decimal.RequireFromString("0.85"),
				decimal.RequireFromString("0.65"),
				decimal.RequireFromString("0.45"),
				decimal.RequireFromString("0.32"),
			},
			Floor: decimal.RequireFromString("0.0005"),
		},
	}
}

// Validate rejects tables that could produce an unordered or negative band
func (t Tables) Validate() error {
	switch t.Currency {
	case types.CurrencyUSD, types.CurrencyEUR, types.CurrencyGBP:
	default:
		return errors.Config(fmt.Sprintf("unsupported currency %q", t.Currency), nil)
	}
	for cat, b := range t.Categories {
		if !cat.IsValid() {
			return errors.Config(fmt.Sprintf("unknown category %q in pricing table", cat), nil)
		}
		if err := b.Validate(); err != nil {
			return errors.Config(fmt.Sprintf("category %s", cat), err)
		}
	}
	if err := t.Fallback.Validate(); err != nil {
		return errors.Config("fallback band", err)
	}
	if t.FallbackWidening.LessThan(decimal.NewFromInt(1)) {
		return errors.Config(fmt.Sprintf("fallback_widening %s must be at least 1", t.FallbackWidening), nil)
	}
	if t.UncertaintyWidening.IsNegative() {
		return errors.Config(fmt.Sprintf("uncertainty_widening %s must not be negative", t.UncertaintyWidening), nil)
	}
	for pkg, m := range t.PackageMultipliers {
		if !pkg.IsValid() {
			return errors.Config(fmt.Sprintf("unknown package type %q in pricing table", pkg), nil)
		}
		if !m.IsPositive() {
			return errors.Config(fmt.Sprintf("package %s multiplier %s must be positive", pkg, m), nil)
		}
	}
	if err := t.Curve.Validate(); err != nil {
		return errors.Config("volume curve", err)
	}
	return nil
}

// multiplier returns the package multiplier, 1 when unset
func (t Tables) multiplier(pkg types.PackageType) decimal.Decimal {
	if m, ok := t.PackageMultipliers[pkg]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}
