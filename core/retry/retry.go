// Package retry runs provider calls with a bounded, fixed backoff schedule.
package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"pcb-cost/internal/clock"
	"pcb-cost/internal/errors"
)

// Policy defines retry behavior. Backoff[i] is waited before attempt i+2;
// when the schedule is shorter than MaxRetries its last entry repeats.
type Policy struct {
	MaxRetries int
	Backoff    []time.Duration
	Clock      clock.Clock
}

// DefaultPolicy returns 3 retries waiting 1s, 2s and 4s
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		Backoff:    []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		Clock:      clock.Real{},
	}
}

// Stats reports what a call cost
type Stats struct {
	Attempts int
	Waits    []time.Duration
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last cause
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err came from a spent retry budget
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return stderrors.As(err, &ex)
}

// RetryableError is implemented by errors that declare their retryability
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable determines if an error is transient and worth retrying.
// Errors that declare retryability are trusted; otherwise a deadline or a
// known transient message counts as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := errors.As(err); ok {
		return e.Retryable
	}
	var r RetryableError
	if stderrors.As(err, &r) {
		return r.IsRetryable()
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"timed out",
		"temporary failure",
		"rate limit",
		"too many requests",
		"service unavailable",
		"overloaded",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (p Policy) wait(i int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if i >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[i]
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. A cancelled context stops the schedule and is
// returned as is.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, Stats, error) {
	clk := p.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	var zero T
	var st Stats
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			d := p.wait(attempt - 1)
			st.Waits = append(st.Waits, d)
			if err := clk.Sleep(ctx, d); err != nil {
				return zero, st, err
			}
		}

		st.Attempts++
		v, err := fn(ctx)
		if err == nil {
			return v, st, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, st, ctxErr
		}
		if !IsRetryable(err) {
			return zero, st, err
		}
	}

	return zero, st, &ExhaustedError{Attempts: st.Attempts, Last: lastErr}
}
