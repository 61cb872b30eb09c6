package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "[CONFIG_ERROR] bad table", Config("bad table", nil).Error())

	cause := stderrors.New("dial tcp: timeout")
	assert.Equal(t, "[PROVIDER_TRANSPORT_ERROR] request failed: dial tcp: timeout", Transport("request failed", cause).Error())
}

func TestAsThroughWrapping(t *testing.T) {
	inner := Parse("missing field category", nil).WithContext("kind", "component_classification")
	wrapped := fmt.Errorf("classify R1: %w", inner)

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, TypeParse, e.Type)
	assert.Equal(t, "component_classification", e.Context["kind"])
	assert.True(t, IsType(wrapped, TypeParse))
	assert.False(t, IsType(wrapped, TypeAuth))

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transport("x", nil)))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", RateLimited("429", nil))))
	assert.False(t, IsRetryable(Auth("401", nil)))
	assert.False(t, IsRetryable(BadRequest("400", nil)))
	assert.False(t, IsRetryable(Parse("bad json", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Cache("write failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Is(TypeCache))
}
