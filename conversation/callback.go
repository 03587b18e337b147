package conversation

import (
	"context"

	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/tools"
)

// Callback is notified on the engine events.
type Callback interface {
	tools.Callback

	OnQueryStart(ctx context.Context, name string, input string)
	// OnQueryEnd is called with the messages of the committed turn
	OnQueryEnd(ctx context.Context, name string, input, answer string, messages []llms.Message)
	OnQueryError(ctx context.Context, name string, input string, err error)
	OnModelCallStart(ctx context.Context, llm llms.Model, payload []llms.Message)
	OnModelCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse)
	OnReset(ctx context.Context, name string)
}
