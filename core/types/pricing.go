// Package types - Pricing types
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// MoneyPlaces is the rounding precision of reported amounts
const MoneyPlaces = 4

// PriceBand is a low/typical/high cost range at a volume
type PriceBand struct {
	Low      decimal.Decimal `json:"low"`
	Typical  decimal.Decimal `json:"typical"`
	High     decimal.Decimal `json:"high"`
	Currency Currency        `json:"currency"`

	// Volume is the quantity the band was computed at
	Volume int `json:"volume"`
}

// NewPriceBand creates a band, rejecting low > typical or typical > high
func NewPriceBand(low, typical, high decimal.Decimal, currency Currency, volume int) (PriceBand, error) {
	b := PriceBand{Low: low, Typical: typical, High: high, Currency: currency, Volume: volume}
	if !b.IsOrdered() {
		return PriceBand{}, fmt.Errorf("unordered price band %s/%s/%s", low, typical, high)
	}
	return b, nil
}

// ZeroBand returns an empty band in currency
func ZeroBand(currency Currency, volume int) PriceBand {
	return PriceBand{Low: decimal.Zero, Typical: decimal.Zero, High: decimal.Zero, Currency: currency, Volume: volume}
}

// FlatBand returns a band with all three points equal to v
func FlatBand(v decimal.Decimal, currency Currency, volume int) PriceBand {
	return PriceBand{Low: v, Typical: v, High: v, Currency: currency, Volume: volume}
}

// IsOrdered checks low <= typical <= high
func (b PriceBand) IsOrdered() bool {
	return b.Low.LessThanOrEqual(b.Typical) && b.Typical.LessThanOrEqual(b.High)
}

// IsZero reports whether every point is zero
func (b PriceBand) IsZero() bool {
	return b.Low.IsZero() && b.Typical.IsZero() && b.High.IsZero()
}

// Add sums two bands point by point
func (b PriceBand) Add(o PriceBand) PriceBand {
	return PriceBand{
		Low:      b.Low.Add(o.Low),
		Typical:  b.Typical.Add(o.Typical),
		High:     b.High.Add(o.High),
		Currency: b.Currency,
		Volume:   b.Volume,
	}
}

// AddFlat adds v to every point
func (b PriceBand) AddFlat(v decimal.Decimal) PriceBand {
	return b.Add(FlatBand(v, b.Currency, b.Volume))
}

// Mul scales every point by a non-negative factor
func (b PriceBand) Mul(f decimal.Decimal) PriceBand {
	return PriceBand{
		Low:      b.Low.Mul(f),
		Typical:  b.Typical.Mul(f),
		High:     b.High.Mul(f),
		Currency: b.Currency,
		Volume:   b.Volume,
	}
}

// MulInt scales every point by n
func (b PriceBand) MulInt(n int) PriceBand {
	return b.Mul(decimal.NewFromInt(int64(n)))
}

// Round rounds every point to places
func (b PriceBand) Round(places int32) PriceBand {
	return PriceBand{
		Low:      b.Low.Round(places),
		Typical:  b.Typical.Round(places),
		High:     b.High.Round(places),
		Currency: b.Currency,
		Volume:   b.Volume,
	}
}

// AtVolume returns a copy labeled with volume
func (b PriceBand) AtVolume(volume int) PriceBand {
	b.Volume = volume
	return b
}

// Mid returns the midpoint of low and high
func (b PriceBand) Mid() decimal.Decimal {
	return b.Low.Add(b.High).Div(decimal.NewFromInt(2))
}

// String renders the band for logs
func (b PriceBand) String() string {
	return fmt.Sprintf("%s [%s..%s] %s", b.Typical.StringFixed(MoneyPlaces), b.Low.StringFixed(MoneyPlaces), b.High.StringFixed(MoneyPlaces), b.Currency)
}
