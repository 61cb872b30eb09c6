package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcb-cost/core/types"
)

func TestCurveMultiplierAtBreakpoints(t *testing.T) {
	c := DefaultTables().Curve
	for i, bp := range c.Breakpoints {
		assert.InDelta(t, c.Multipliers[i].InexactFloat64(), c.Multiplier(bp), 1e-12, "breakpoint %d", bp)
	}
	assert.Equal(t, 1.0, c.Multiplier(0))
	assert.Equal(t, 1.0, c.Multiplier(-5))
}

func TestCurveInterpolatesInLogSpace(t *testing.T) {
	c := DefaultTables().Curve

	// log10(31) is about 1.49, so the multiplier sits just above the
	// geometric mean of 0.85 and 0.65.
	got := c.Multiplier(31)
	assert.InDelta(t, 0.745, got, 0.001)
	assert.Less(t, got, 0.85)
	assert.Greater(t, got, 0.65)
}

func TestCurveExtrapolatesPastLastBreakpoint(t *testing.T) {
	c := DefaultTables().Curve

	m := c.Multiplier(100000)
	// one more decade on the 1000..10000 slope: 0.32 * 0.32/0.45
	assert.InDelta(t, 0.32*0.32/0.45, m, 1e-9)
}

func TestCurveIsMonotonic(t *testing.T) {
	c := DefaultTables().Curve
	band := types.PriceBand{
		Low:      decimal.RequireFromString("0.004"),
		Typical:  decimal.RequireFromString("0.01"),
		High:     decimal.RequireFromString("0.05"),
		Currency: types.CurrencyUSD,
		Volume:   1,
	}

	prevMult := c.Multiplier(1)
	prev := c.At(band, 1)
	for q := 2; q <= 2000000; q = q*5/4 + 1 {
		mult := c.Multiplier(q)
		require.LessOrEqual(t, mult, prevMult+1e-12, "multiplier rose at %d", q)
		prevMult = mult

		cur := c.At(band, q)
		require.True(t, cur.IsOrdered(), "q=%d %s", q, cur)
		require.True(t, cur.Typical.LessThanOrEqual(prev.Typical), "typical rose at %d", q)
		require.True(t, cur.Low.LessThanOrEqual(prev.Low), "low rose at %d", q)
		require.True(t, cur.High.LessThanOrEqual(prev.High), "high rose at %d", q)
		prev = cur
	}
}

func TestCurveClampsToFloor(t *testing.T) {
	c := DefaultTables().Curve
	band := types.FlatBand(decimal.RequireFromString("0.001"), types.CurrencyUSD, 1)

	far := c.At(band, 50000000)
	assert.True(t, far.Low.Equal(c.Floor), far.String())
	assert.True(t, far.High.Equal(c.Floor))
	assert.Equal(t, 50000000, far.Volume)
}

func TestCurveAtRebasesFromAnchor(t *testing.T) {
	c := DefaultTables().Curve
	band := types.FlatBand(decimal.RequireFromString("0.65"), types.CurrencyUSD, 100)

	assert.True(t, c.At(band, 100).Typical.Equal(decimal.RequireFromString("0.65")))
	assert.True(t, c.At(band, 1).Typical.Equal(decimal.RequireFromString("1")), c.At(band, 1).String())
	assert.True(t, c.At(band, 1000).Typical.Equal(decimal.RequireFromString("0.45")), c.At(band, 1000).String())
}

func TestCurveAnchor(t *testing.T) {
	c := DefaultTables().Curve
	tests := map[int]int{-1: 1, 0: 1, 1: 1, 9: 1, 10: 10, 999: 100, 1000: 1000, 10000: 10000, 99999: 10000}
	for q, want := range tests {
		assert.Equal(t, want, c.Anchor(q), "q=%d", q)
	}
}

func TestCurveValidate(t *testing.T) {
	assert.NoError(t, DefaultTables().Curve.Validate())
	assert.Error(t, Curve{}.Validate())
	assert.Error(t, Curve{Breakpoints: []int{10, 100}, Multipliers: []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(1)}}.Validate())
	assert.Error(t, Curve{Breakpoints: []int{1, 1}, Multipliers: []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(1)}}.Validate())
}
