// Package types - Enrichment result types
package types

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"pcb-cost/internal/errors"
)

// PriceReasonablenessResult is the provider's view of a unit price
type PriceReasonablenessResult struct {
	ExpectedLow  decimal.Decimal `json:"expected_low"`
	ExpectedHigh decimal.Decimal `json:"expected_high"`

	// VariancePercent is relative to the midpoint of the expected range
	VariancePercent float64 `json:"variance_percent"`

	IsReasonable bool    `json:"is_reasonable"`
	Suggestion   string  `json:"suggestion,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// Validate checks the expected range and confidence
func (r PriceReasonablenessResult) Validate() error {
	if r.ExpectedLow.IsNegative() || r.ExpectedHigh.LessThan(r.ExpectedLow) {
		return errors.Parse(fmt.Sprintf("invalid expected range %s..%s", r.ExpectedLow, r.ExpectedHigh), nil)
	}
	if math.IsNaN(r.VariancePercent) || math.IsInf(r.VariancePercent, 0) {
		return errors.Parse("variance is not finite", nil)
	}
	return checkUnit("confidence", r.Confidence)
}

// RiskLevel is an obsolescence risk grade
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskObsolete RiskLevel = "obsolete"
)

// IsValid checks if the risk level is known
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskNone, RiskLow, RiskMedium, RiskHigh, RiskObsolete:
		return true
	}
	return false
}

// LifecycleStatus is a part's production status
type LifecycleStatus string

const (
	LifecycleActive   LifecycleStatus = "active"
	LifecycleNRND     LifecycleStatus = "nrnd"
	LifecycleEOL      LifecycleStatus = "eol"
	LifecycleObsolete LifecycleStatus = "obsolete"
	LifecycleUnknown  LifecycleStatus = "unknown"
)

// IsValid checks if the lifecycle status is known
func (l LifecycleStatus) IsValid() bool {
	switch l {
	case LifecycleActive, LifecycleNRND, LifecycleEOL, LifecycleObsolete, LifecycleUnknown:
		return true
	}
	return false
}

// Alternative is a suggested replacement part
type Alternative struct {
	MPN          string `json:"mpn"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// ObsolescenceResult is the provider's lifecycle assessment of one MPN
type ObsolescenceResult struct {
	MPN             string          `json:"mpn"`
	Risk            RiskLevel       `json:"risk_level"`
	Lifecycle       LifecycleStatus `json:"lifecycle_status"`
	RiskFactors     []string        `json:"risk_factors,omitempty"`
	Alternatives    []Alternative   `json:"alternatives,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Confidence      float64         `json:"confidence"`
}

// Validate checks that risk and lifecycle are known grades
func (r ObsolescenceResult) Validate() error {
	if !r.Risk.IsValid() {
		return errors.Parse(fmt.Sprintf("unknown risk level %q", r.Risk), nil)
	}
	if !r.Lifecycle.IsValid() {
		return errors.Parse(fmt.Sprintf("unknown lifecycle status %q", r.Lifecycle), nil)
	}
	return checkUnit("confidence", r.Confidence)
}

// Usage is the token cost of one provider call
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns prompt plus completion tokens
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// RequestKind names an enrichment capability
type RequestKind string

const (
	KindClassification RequestKind = "component_classification"
	KindPriceCheck     RequestKind = "price_reasonableness"
	KindObsolescence   RequestKind = "obsolescence_detection"
)

// RequestKinds lists every kind in a stable order
var RequestKinds = []RequestKind{KindClassification, KindPriceCheck, KindObsolescence}

// String returns the string representation
func (k RequestKind) String() string {
	return string(k)
}

// IsValid checks if the kind is known
func (k RequestKind) IsValid() bool {
	switch k {
	case KindClassification, KindPriceCheck, KindObsolescence:
		return true
	}
	return false
}
