package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcb-cost/internal/clock"
	"pcb-cost/internal/errors"
)

func fakePolicy() (Policy, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p := DefaultPolicy()
	p.Clock = clk
	return p, clk
}

func TestDoSucceedsFirstTry(t *testing.T) {
	p, clk := fakePolicy()

	v, st, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, st.Attempts)
	assert.Empty(t, st.Waits)
	assert.Empty(t, clk.Sleeps())
}

func TestDoTwoRetryableFailuresThenSuccess(t *testing.T) {
	p, clk := fakePolicy()

	calls := 0
	v, st, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		if calls <= 2 {
			return 0, errors.Transport("upstream 503", nil)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, st.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, st.Waits)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Sleeps())
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	for name, cause := range map[string]error{
		"auth":        errors.Auth("invalid key", nil),
		"bad request": errors.BadRequest("bad schema", nil),
		"parse":       errors.Parse("not json", nil),
	} {
		t.Run(name, func(t *testing.T) {
			p, clk := fakePolicy()

			calls := 0
			_, st, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
				calls++
				return 0, cause
			})
			require.Error(t, err)
			assert.Equal(t, 1, calls)
			assert.Equal(t, 1, st.Attempts)
			assert.Empty(t, st.Waits)
			assert.Empty(t, clk.Sleeps())
			assert.False(t, IsExhausted(err))
		})
	}
}

func TestDoExhaustsAndWrapsLastCause(t *testing.T) {
	p, _ := fakePolicy()

	calls := 0
	_, st, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.RateLimited(fmt.Sprintf("429 attempt %d", calls), nil)
	})
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, st.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, st.Waits)
	assert.True(t, errors.IsType(err, errors.TypeRateLimited))
	assert.Contains(t, err.Error(), "429 attempt 4")
}

func TestDoRepeatsLastBackoff(t *testing.T) {
	p, _ := fakePolicy()
	p.MaxRetries = 5
	p.Backoff = []time.Duration{time.Second}

	_, st, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, errors.Transport("timeout", nil)
	})
	require.Error(t, err)
	assert.Len(t, st.Waits, 5)
	for _, w := range st.Waits {
		assert.Equal(t, time.Second, w)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	p, _ := fakePolicy()
	ctx, cancel := context.WithCancel(context.Background())

	_, _, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		cancel()
		return 0, errors.Transport("timeout", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsExhausted(err))
}

type declared struct{ retry bool }

func (d declared) Error() string     { return "declared" }
func (d declared) IsRetryable() bool { return d.retry }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", errors.Transport("x", nil), true},
		{"wrapped transport", fmt.Errorf("call: %w", errors.Transport("x", nil)), true},
		{"auth", errors.Auth("x", nil), false},
		{"declared retryable", declared{retry: true}, true},
		{"declared permanent", declared{retry: false}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"message", stderrors.New("connection reset by peer"), true},
		{"unknown", stderrors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
