package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/mocks/mockllms"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type fakeTool struct{ name string }

func (t *fakeTool) Name() string                                           { return t.name }
func (t *fakeTool) Description() string                                    { return "desc" }
func (t *fakeTool) Parameters() any                                        { return nil }
func (t *fakeTool) Call(ctx context.Context, input string) (string, error) { return "", nil }

var testLogger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "callbacks_test")

func fireAll(ctx context.Context, cb interface {
	OnQueryStart(context.Context, string, string)
	OnQueryEnd(context.Context, string, string, string, []llms.Message)
	OnQueryError(context.Context, string, string, error)
	OnModelCallStart(context.Context, llms.Model, []llms.Message)
	OnModelCallEnd(context.Context, llms.Model, *llms.ContentResponse)
	OnReset(context.Context, string)
}, llm llms.Model) {
	msgs := []llms.Message{llms.TextMessage(llms.RoleUser, "test input")}
	cb.OnQueryStart(ctx, "travel", "test input")
	cb.OnModelCallStart(ctx, llm, msgs)
	cb.OnModelCallEnd(ctx, llm, &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				ToolCalls: []llms.ToolCall{
					{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "booking__ping", Arguments: "{}"}},
				},
			},
		},
	})
	cb.OnQueryEnd(ctx, "travel", "test input", "test output", msgs)
	cb.OnQueryError(ctx, "travel", "test input", errors.New("test error"))
	cb.OnReset(ctx, "travel")
}

func TestPrinter(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-test").AnyTimes()

	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)
	tool := &fakeTool{name: "booking__ping"}

	fireAll(ctx, cb, llm)
	cb.OnToolStart(ctx, tool, "test input")
	cb.OnToolEnd(ctx, tool, "test input", "test output")
	cb.OnToolError(ctx, tool, "test input", errors.New("test error"))
	cb.OnToolNotFound(ctx, "booking__cancel")

	res := buf.String()
	assert.Contains(t, res, "Query Start: travel")
	assert.Contains(t, res, "Input: test input")
	assert.Contains(t, res, "Model Call: gpt-test model, 1 messages")
	assert.Contains(t, res, "Model Call End: gpt-test model, 1 choices")
	assert.Contains(t, res, "ToolCall: 1 (booking__ping), input: {}")
	assert.Contains(t, res, "Query End: travel, 1 messages\ntest output")
	assert.Contains(t, res, "Query Error: travel: test error")
	assert.Contains(t, res, "Reset: travel")
	assert.Contains(t, res, "Tool Start: booking__ping")
	assert.Contains(t, res, "Tool End: booking__ping")
	assert.Contains(t, res, "Output: test output")
	assert.Contains(t, res, "Tool Error: booking__ping: test error")
	assert.Contains(t, res, "Tool Not Found: booking__cancel")

	buf.Reset()
	cb = callbacks.NewPrinter(&buf, callbacks.ModeDefault)
	cb.OnToolEnd(ctx, tool, "test input", "test output")
	assert.Equal(t, "Tool End: booking__ping\n", buf.String())
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-test").AnyTimes()

	var buf1, buf2 bytes.Buffer
	fan := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	fan.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))
	fan.Add(callbacks.NewNoop())
	fan.Add(callbacks.NewPackageLogger(testLogger))

	tool := &fakeTool{name: "booking__ping"}
	fireAll(ctx, fan, llm)
	fan.OnToolStart(ctx, tool, "in")
	fan.OnToolEnd(ctx, tool, "in", "out")
	fan.OnToolError(ctx, tool, "in", errors.New("failed"))
	fan.OnToolNotFound(ctx, "x")

	assert.NotEmpty(t, buf1.String())
	assert.Equal(t, buf1.String(), buf2.String())
}
