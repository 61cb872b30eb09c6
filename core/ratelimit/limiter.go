// Package ratelimit throttles outbound provider calls.
//
// A token bucket from golang.org/x/time/rate shapes the steady rate while a
// ledger of the last requests_per_minute grant times enforces the rolling
// one minute ceiling: a bucket allows up to twice its capacity inside one
// window when it starts full.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pcb-cost/internal/clock"
	"pcb-cost/internal/logging"
)

// Window is the span requests_per_minute is measured over
const Window = time.Minute

// Limiter grants at most rpm acquisitions in any rolling Window.
// Grants are assigned in arrival order. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	rpm    int
	bucket *rate.Limiter
	clock  clock.Clock
	logger *zap.Logger

	// ring of the last rpm grant times
	grants []time.Time
	next   int
	filled bool
	last   time.Time
}

// New creates a limiter for rpm requests per minute. A nil clock uses the
// wall clock and a nil logger uses the process logger.
func New(rpm int, clk clock.Clock, logger *zap.Logger) *Limiter {
	if rpm < 1 {
		rpm = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Named("ratelimit")
	}
	return &Limiter{
		rpm:    rpm,
		bucket: rate.NewLimiter(rate.Limit(float64(rpm)/Window.Seconds()), rpm),
		clock:  clk,
		logger: logger,
		grants: make([]time.Time, rpm),
	}
}

// RequestsPerMinute returns the configured ceiling
func (l *Limiter) RequestsPerMinute() int {
	return l.rpm
}

// Acquire blocks until a slot is granted or ctx is done. A cancelled
// acquisition keeps its slot.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	at := l.reserve()
	wait := at.Sub(l.clock.Now())
	if wait <= 0 {
		return nil
	}

	l.logger.Debug("waiting for rate limit slot", zap.Duration("wait", wait))
	return l.clock.Sleep(ctx, wait)
}

// reserve books the next slot and returns its grant time
func (l *Limiter) reserve() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	r := l.bucket.ReserveN(now, 1)
	at := now.Add(r.DelayFrom(now))

	if l.filled {
		if earliest := l.grants[l.next].Add(Window); earliest.After(at) {
			at = earliest
		}
	}
	if l.last.After(at) {
		at = l.last
	}

	l.grants[l.next] = at
	l.next = (l.next + 1) % l.rpm
	if l.next == 0 {
		l.filled = true
	}
	l.last = at
	return at
}
