package llms_test

import (
	"testing"

	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallOptions(t *testing.T) {
	catalog := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:       "booking__searchTours",
				Parameters: map[string]any{"type": "object"},
			},
		},
	}

	cfg := llms.NewCallOptions(
		llms.WithModel("gpt-4o"),
		llms.WithMaxTokens(150),
		llms.WithTemperature(0.4),
		llms.WithTools(catalog),
		llms.WithToolChoice(llms.FunctionCallBehaviorAuto),
		llms.WithParallelToolCalls(false),
		nil,
	)

	require.NotNil(t, cfg.ParallelToolCalls)
	assert.False(t, *cfg.ParallelToolCalls)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 150, cfg.MaxTokens)
	assert.Equal(t, 0.4, cfg.Temperature)
	assert.Equal(t, catalog, cfg.Tools)
	assert.Equal(t, llms.FunctionCallBehaviorAuto, cfg.ToolChoice)

	t.Run("empty", func(t *testing.T) {
		cfg := llms.NewCallOptions()
		assert.Nil(t, cfg.ParallelToolCalls)
		assert.Nil(t, cfg.ToolChoice)
		assert.Empty(t, cfg.Tools)
	})
}
