package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// Phase is a step of one estimation run. Phases only move forward.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseClassifying
	PhasePricing
	PhaseAssembly
	PhaseEnriching
	PhaseAggregating
	PhaseDone
)

// String returns the phase name
func (p Phase) String() string {
	names := []string{
		"init", "classifying", "pricing", "assembly",
		"enriching", "aggregating", "done",
	}
	if int(p) >= 0 && int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// PhaseOrderError indicates phases executed out of order
type PhaseOrderError struct {
	Next    Phase
	Current Phase
}

func (e *PhaseOrderError) Error() string {
	return fmt.Sprintf("cannot enter phase %s from %s", e.Next, e.Current)
}

// tracker records the current phase of a run
type tracker struct {
	phase  Phase
	logger *zap.Logger
}

// enter moves to next, which must be later than the current phase
func (t *tracker) enter(next Phase) error {
	if next <= t.phase {
		return &PhaseOrderError{Next: next, Current: t.phase}
	}
	t.logger.Debug("phase", zap.Stringer("from", t.phase), zap.Stringer("to", next))
	t.phase = next
	return nil
}

// guard fails unless phase required has been reached
func (t *tracker) guard(required Phase) error {
	if t.phase < required {
		return &PhaseOrderError{Next: required, Current: t.phase}
	}
	return nil
}
