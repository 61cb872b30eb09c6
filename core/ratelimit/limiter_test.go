package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pcb-cost/internal/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAcquireImmediateWithinCapacity(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(3, clk, zap.NewNop())

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Empty(t, clk.Sleeps())
}

func TestAcquireWaitsForRollingWindow(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(2, clk, zap.NewNop())

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))

	sleeps := clk.Sleeps()
	require.Len(t, sleeps, 1)
	assert.Equal(t, Window, sleeps[0])
}

func TestAcquireCancelled(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(1, clk, zap.NewNop())
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestReserveNeverExceedsRateInAnyWindow(t *testing.T) {
	const rpm = 5
	const callers = 40

	l := New(rpm, clock.NewFake(epoch), zap.NewNop())

	var mu sync.Mutex
	var grants []time.Time
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			at := l.reserve()
			mu.Lock()
			grants = append(grants, at)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, grants, callers)
	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
	for i := 0; i+rpm < len(grants); i++ {
		assert.GreaterOrEqual(t, grants[i+rpm].Sub(grants[i]), Window,
			"grants %d and %d fall inside one window", i, i+rpm)
	}
}

func TestReserveIsFIFO(t *testing.T) {
	l := New(2, clock.NewFake(epoch), zap.NewNop())

	var prev time.Time
	for i := 0; i < 10; i++ {
		at := l.reserve()
		assert.False(t, at.Before(prev))
		prev = at
	}
}

func TestNewClampsRate(t *testing.T) {
	l := New(0, clock.NewFake(epoch), zap.NewNop())
	assert.Equal(t, 1, l.RequestsPerMinute())
}
