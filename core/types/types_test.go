package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcb-cost/internal/errors"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"":                   "",
		" Resistor ":         CategoryResistor,
		"CAP":                CategoryCapacitor,
		"xtal":               CategoryCrystal,
		"integrated circuit": CategoryIC,
		"sensor":             CategorySensor,
		"widget":             CategoryUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCategory(in), in)
	}
	assert.False(t, CategoryUnknown.IsResolved())
	assert.True(t, CategoryLED.IsResolved())
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierSmallSMD, TierFor(PackageSMDSmall))
	assert.Equal(t, TierFinePitch, TierFor(PackageQFN))
	assert.Equal(t, TierBGA, TierFor(PackageBGA))
	assert.Equal(t, TierThroughHole, TierFor(PackageThroughHole))
	assert.Equal(t, TierConnector, TierFor(PackageConnector))
	assert.Equal(t, TierLargeSMD, TierFor(PackageSOIC))
	assert.Equal(t, TierLargeSMD, TierFor(PackageUnknown))
}

func TestLineItemIdentity(t *testing.T) {
	a := LineItem{ReferenceDesignator: "R1", MPN: " rc0603fr-0710kl "}
	b := LineItem{ReferenceDesignator: "R7, R8", MPN: "RC0603FR-0710KL"}
	assert.Equal(t, a.Identity(), b.Identity())
	assert.Equal(t, "RC0603FR-0710KL", a.Identity())

	c := LineItem{ReferenceDesignator: "r3;r4", Description: "10k  Resistor"}
	e := LineItem{ReferenceDesignator: "R9", Description: "10K resistor"}
	assert.Equal(t, "desc:10k resistor|ref:R", c.Identity())
	assert.Equal(t, c.Identity(), e.Identity())

	f := LineItem{ReferenceDesignator: "C1", Description: "10k resistor"}
	assert.NotEqual(t, c.Identity(), f.Identity(), "designator prefix separates identities")
}

func TestLineItemReferences(t *testing.T) {
	i := LineItem{ReferenceDesignator: " led12, LED13"}
	assert.Equal(t, "led12", i.FirstReference())
	assert.Equal(t, "LED", i.RefPrefix())

	assert.Empty(t, LineItem{ReferenceDesignator: "12"}.RefPrefix())
}

func TestLineItemValidate(t *testing.T) {
	assert.NoError(t, LineItem{ReferenceDesignator: "R1", Quantity: 0}.Validate())

	err := LineItem{ReferenceDesignator: "  ", LineNumber: 4}.Validate()
	require.Error(t, err)
	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.TypeValidation, e.Type)
	assert.Equal(t, 4, e.Context["line"])

	err = LineItem{ReferenceDesignator: "R1", Quantity: -2}.Validate()
	assert.True(t, errors.IsType(err, errors.TypeValidation))

	assert.True(t, LineItem{DNP: true, Quantity: 3}.Excluded())
	assert.True(t, LineItem{Quantity: 0}.Excluded())
	assert.False(t, LineItem{Quantity: 1}.Excluded())
}

func TestPriceBand(t *testing.T) {
	_, err := NewPriceBand(d("2"), d("1"), d("3"), CurrencyUSD, 1)
	assert.Error(t, err)

	b, err := NewPriceBand(d("0.1"), d("0.2"), d("0.6"), CurrencyUSD, 10)
	require.NoError(t, err)

	sum := b.Add(FlatBand(d("1"), CurrencyUSD, 10))
	assert.True(t, sum.Typical.Equal(d("1.2")))
	assert.True(t, b.AddFlat(d("1")).High.Equal(d("1.6")))

	scaled := b.MulInt(3)
	assert.True(t, scaled.Low.Equal(d("0.3")))
	assert.True(t, scaled.IsOrdered())
	assert.True(t, b.Mid().Equal(d("0.35")))

	r := PriceBand{Low: d("0.123456"), Typical: d("0.2"), High: d("0.3"), Currency: CurrencyEUR}.Round(MoneyPlaces)
	assert.Equal(t, "0.1235", r.Low.String())

	assert.Equal(t, 50, b.AtVolume(50).Volume)
	assert.Equal(t, 10, b.Volume, "AtVolume copies")
	assert.True(t, ZeroBand(CurrencyGBP, 1).IsZero())
	assert.Equal(t, "0.2000 [0.1000..0.6000] USD", b.String())
}

func TestCostEstimateLookups(t *testing.T) {
	est := &CostEstimate{
		Components: []ComponentCostEstimate{{ReferenceDesignator: "U1", Tiers: []TierLine{{Volume: 100}}}},
		Tiers:      []TierTotal{{Volume: 1}, {Volume: 100}},
	}

	_, ok := est.Tier(100)
	assert.True(t, ok)
	_, ok = est.Tier(5)
	assert.False(t, ok)

	c, ok := est.Component("U1")
	require.True(t, ok)
	_, ok = c.Tier(100)
	assert.True(t, ok)
	_, ok = est.Component("U2")
	assert.False(t, ok)

	assert.False(t, est.IsDegraded())
	est.DegradedNotes = append(est.DegradedNotes, "price_check: 1 of 1 requests unavailable")
	assert.True(t, est.IsDegraded())
}

func TestRequestKinds(t *testing.T) {
	for _, k := range RequestKinds {
		assert.True(t, k.IsValid(), k)
	}
	assert.False(t, RequestKind("weather").IsValid())
}

func TestResultValidate(t *testing.T) {
	assert.NoError(t, ClassificationResult{Category: CategoryIC, Confidence: 0.9, Package: PackageQFN}.Validate())
	assert.Error(t, ClassificationResult{Category: "gizmo", Confidence: 0.9}.Validate())
	assert.Error(t, ClassificationResult{Category: CategoryIC, Package: "tube"}.Validate())
	assert.Error(t, ClassificationResult{Category: CategoryIC, Confidence: 1.2}.Validate())

	assert.NoError(t, ObsolescenceResult{Risk: RiskLow, Lifecycle: LifecycleActive}.Validate())
	err := ObsolescenceResult{Risk: "bogus", Lifecycle: LifecycleActive}.Validate()
	assert.True(t, errors.IsType(err, errors.TypeParse))
	assert.Error(t, ObsolescenceResult{Risk: RiskLow}.Validate())

	assert.NoError(t, PriceReasonablenessResult{ExpectedLow: d("0.1"), ExpectedHigh: d("0.2")}.Validate())
	assert.Error(t, PriceReasonablenessResult{ExpectedLow: d("0.3"), ExpectedHigh: d("0.2")}.Validate())
	assert.Error(t, PriceReasonablenessResult{ExpectedLow: d("-1"), ExpectedHigh: d("0.2")}.Validate())
}
