package pricing

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"pcb-cost/core/types"
)

// UnitPlaces is the rounding applied to computed unit prices
const UnitPlaces = 6

// Curve is a piecewise log-log volume discount curve. Multipliers[i]
// applies at Breakpoints[i].
type Curve struct {
	Breakpoints []int
	Multipliers []decimal.Decimal

	// Floor is the minimum unit cost after extrapolation
	Floor decimal.Decimal
}

// Validate checks that breakpoints ascend and multipliers never increase
func (c Curve) Validate() error {
	if len(c.Breakpoints) == 0 {
		return fmt.Errorf("no breakpoints")
	}
	if len(c.Breakpoints) != len(c.Multipliers) {
		return fmt.Errorf("%d breakpoints but %d multipliers", len(c.Breakpoints), len(c.Multipliers))
	}
	if c.Breakpoints[0] != 1 {
		return fmt.Errorf("first breakpoint must be 1, got %d", c.Breakpoints[0])
	}
	for i := range c.Breakpoints {
		if !c.Multipliers[i].IsPositive() {
			return fmt.Errorf("multiplier %s at %d must be positive", c.Multipliers[i], c.Breakpoints[i])
		}
		if i == 0 {
			continue
		}
		if c.Breakpoints[i] <= c.Breakpoints[i-1] {
			return fmt.Errorf("breakpoints must ascend: %d after %d", c.Breakpoints[i], c.Breakpoints[i-1])
		}
		if c.Multipliers[i].GreaterThan(c.Multipliers[i-1]) {
			return fmt.Errorf("multiplier rises from %s to %s at %d", c.Multipliers[i-1], c.Multipliers[i], c.Breakpoints[i])
		}
	}
	if c.Floor.IsNegative() {
		return fmt.Errorf("floor %s must not be negative", c.Floor)
	}
	return nil
}

// Anchor returns the largest breakpoint not above q. Quantities below one
// count as one.
func (c Curve) Anchor(q int) int {
	if q < 1 {
		q = 1
	}
	i := sort.Search(len(c.Breakpoints), func(i int) bool { return c.Breakpoints[i] > q })
	if i == 0 {
		return c.Breakpoints[0]
	}
	return c.Breakpoints[i-1]
}

// Multiplier returns the discount multiplier at q. Between breakpoints it
// interpolates in log-quantity/log-multiplier space; beyond the last one it
// extends the final segment.
func (c Curve) Multiplier(q int) float64 {
	if q < 1 {
		q = 1
	}
	n := len(c.Breakpoints)
	if n == 1 {
		return c.Multipliers[0].InexactFloat64()
	}

	i := sort.Search(n, func(i int) bool { return c.Breakpoints[i] >= q })
	if i < n && c.Breakpoints[i] == q {
		return c.Multipliers[i].InexactFloat64()
	}

	// Segment [lo, hi] brackets q, or is the last segment when q is past it
	hi := i
	if hi >= n {
		hi = n - 1
	}
	lo := hi - 1

	q0, q1 := math.Log(float64(c.Breakpoints[lo])), math.Log(float64(c.Breakpoints[hi]))
	m0, m1 := math.Log(c.Multipliers[lo].InexactFloat64()), math.Log(c.Multipliers[hi].InexactFloat64())
	slope := (m1 - m0) / (q1 - q0)
	return math.Exp(m0 + slope*(math.Log(float64(q))-q0))
}

// At moves band from its anchor volume to quantity q, clamping every point
// to the floor. A band with no volume is treated as anchored at 1.
func (c Curve) At(band types.PriceBand, q int) types.PriceBand {
	if q < 1 {
		q = 1
	}
	from := band.Volume
	if from < 1 {
		from = 1
	}

	ratio := decimal.NewFromFloat(c.Multiplier(q) / c.Multiplier(from))
	if from == q {
		ratio = decimal.NewFromInt(1)
	}

	out := types.PriceBand{
		Low:      c.clamp(band.Low.Mul(ratio)),
		Typical:  c.clamp(band.Typical.Mul(ratio)),
		High:     c.clamp(band.High.Mul(ratio)),
		Currency: band.Currency,
		Volume:   q,
	}
	return out.Round(UnitPlaces)
}

func (c Curve) clamp(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(c.Floor) {
		return c.Floor
	}
	return v
}
