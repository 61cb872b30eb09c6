package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcb-cost/internal/config"
	"pcb-cost/internal/errors"
)

func TestNewAdapter(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	pc := config.PromptsConfig{}

	a, err := New(config.LLMConfig{Provider: config.ProviderNone}, pc, nil)
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = New(config.LLMConfig{Provider: config.ProviderMock}, pc, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", a.Name())

	_, err = New(config.LLMConfig{Provider: config.ProviderOpenAI}, pc, nil)
	assert.True(t, errors.IsType(err, errors.TypeConfig))

	_, err = New(config.LLMConfig{Provider: "cohere"}, pc, nil)
	assert.True(t, errors.IsType(err, errors.TypeConfig))

	a, err = New(config.LLMConfig{Provider: config.ProviderAnthropic, APIKey: "key", MaxTokens: 256}, pc, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", a.Name())
}
