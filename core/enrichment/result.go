package enrichment

import (
	"pcb-cost/core/types"
)

// Reason explains why an enrichment result is unavailable
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonDisabled      Reason = "disabled"
	ReasonNotConfigured Reason = "not_configured"
	ReasonFeatureOff    Reason = "feature_off"
	ReasonAuth          Reason = "auth"
	ReasonParse         Reason = "parse"
	ReasonExhausted     Reason = "exhausted"
	ReasonTimeout       Reason = "timeout"
	ReasonFailed        Reason = "failed"
)

// Degrades reports whether the reason represents a failure worth noting
// rather than a configuration choice.
func (r Reason) Degrades() bool {
	switch r {
	case ReasonAuth, ReasonParse, ReasonExhausted, ReasonTimeout, ReasonFailed:
		return true
	}
	return false
}

// Result carries an enrichment value or the reason it is missing. It is
// never accompanied by an error.
type Result[T any] struct {
	Value     T
	Available bool
	FromCache bool
	Reason    Reason

	// Detail is a short, credential-free description of the failure
	Detail string

	Usage    types.Usage
	Attempts int
}

func available[T any](v T, usage types.Usage, attempts int, fromCache bool) Result[T] {
	return Result[T]{Value: v, Available: true, FromCache: fromCache, Usage: usage, Attempts: attempts}
}

func unavailable[T any](reason Reason, detail string) Result[T] {
	return Result[T]{Reason: reason, Detail: detail}
}
