package callbacks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/mocks/mockllms"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeTool struct{ name string }

func (t *fakeTool) Name() string                                           { return t.name }
func (t *fakeTool) Description() string                                    { return "desc" }
func (t *fakeTool) Parameters() any                                        { return nil }
func (t *fakeTool) Call(ctx context.Context, input string) (string, error) { return "", nil }

func newTestRun() (context.Context, *chatmodel.Run) {
	return chatmodel.StartRun(context.Background(), "chatid")
}

func TestScratchpad_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("gpt-test").AnyTimes()

	var stats *RunStats
	var pad []byte
	sp := NewScratchpad(ModeVerbose, func(s *RunStats, b []byte) {
		stats = s
		pad = b
	})

	ctx, chatRun := newTestRun()
	tool := &fakeTool{name: "booking__searchTours"}
	msgs := []llms.Message{
		llms.TextMessage(llms.RoleUser, "tours"),
		llms.MessageFromToolCalls("", llms.ToolCall{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: tool.name}}),
		llms.MessageFromToolResponse(llms.ToolCallResponse{ToolCallID: "1", Name: tool.name, Content: "{}"}),
		llms.TextMessage(llms.RoleAssistant, "done"),
	}

	sp.OnQueryStart(ctx, "travel", "tours")
	assert.Equal(t, 1, sp.Runs())

	sp.OnModelCallStart(ctx, llm, msgs[:1])
	sp.OnModelCallEnd(ctx, llm, &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        "done",
			GenerationInfo: map[string]any{"InputTokens": 3, "OutputTokens": 2, "TotalTokens": 5},
		}},
	})
	sp.OnToolStart(ctx, tool, "{}")
	sp.OnToolEnd(ctx, tool, "{}", `{"tours":[]}`)
	sp.OnToolStart(ctx, tool, "{}")
	sp.OnToolError(ctx, tool, "{}", errors.New("down"))
	sp.OnToolNotFound(ctx, "booking__cancel")
	sp.OnReset(ctx, "travel")
	sp.OnQueryEnd(ctx, "travel", "tours", "done", msgs)

	assert.Equal(t, 0, sp.Runs())
	require.NotNil(t, stats)
	assert.Equal(t, "chatid", stats.ChatID)
	assert.Equal(t, chatRun.ID(), stats.RunID)
	assert.False(t, stats.Failed)
	assert.Equal(t, uint32(1), stats.LLMCalls)
	assert.Equal(t, uint32(1), stats.TotalMessages)
	assert.Equal(t, uint32(2), stats.ToolsCalls)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolsCallsFailed)
	assert.Equal(t, uint32(1), stats.ToolNotFound)
	assert.Equal(t, uint64(3), stats.LLMInputTokens)
	assert.Equal(t, uint64(2), stats.LLMOutputTokens)
	assert.Equal(t, uint64(5), stats.LLMTotalTokens)
	assert.Equal(t, uint64(4), stats.LLMBytesIn)

	out := string(pad)
	assert.Contains(t, out, "chatid."+chatRun.ID()+" *** Run Started ***")
	assert.Contains(t, out, "travel Input: tours")
	assert.Contains(t, out, "*** LLM Call *** gpt-test model, 1 messages")
	assert.Contains(t, out, "booking__searchTours Output: {\"tours\":[]}")
	assert.Contains(t, out, "booking__searchTours *** Tool Error *** down")
	assert.Contains(t, out, "*** Tool Not Found *** booking__cancel")
	assert.Contains(t, out, "ToolCall: 1 (booking__searchTours), input: ")
	assert.Contains(t, out, "ToolCallResponse: 1 (booking__searchTours), response size: 2")
	assert.Contains(t, out, "Tool calls: 2, Failed: 1, Not Found: 1")
	assert.Contains(t, out, "*** Run Ended.")
}

func TestScratchpad_Error(t *testing.T) {
	saved := TimeNowFn
	defer func() { TimeNowFn = saved }()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	TimeNowFn = func() time.Time { return now }

	var stats *RunStats
	var pad []byte
	sp := NewScratchpad(ModeDefault, func(s *RunStats, b []byte) {
		stats = s
		pad = b
	})

	ctx, _ := newTestRun()
	sp.OnQueryStart(ctx, "travel", "tours")
	sp.OnQueryError(ctx, "travel", "tours", errors.New("rate limited"))

	require.NotNil(t, stats)
	assert.True(t, stats.Failed)
	assert.Equal(t, time.Duration(0), stats.Duration)
	assert.Contains(t, string(pad), "2025-01-02 03:04:05 chatid.")
	assert.Contains(t, string(pad), "travel *** Error *** rate limited")
}

func TestScratchpad_NoRun(t *testing.T) {
	called := false
	sp := NewScratchpad(ModeDefault, func(*RunStats, []byte) { called = true })

	// no run in the context
	ctx := context.Background()
	tool := &fakeTool{name: "t"}
	sp.OnQueryStart(ctx, "travel", "x")
	sp.OnToolStart(ctx, tool, "x")
	sp.OnToolEnd(ctx, tool, "x", "y")
	sp.OnToolError(ctx, tool, "x", errors.New("e"))
	sp.OnToolNotFound(ctx, "t")
	sp.OnModelCallStart(ctx, nil, nil)
	sp.OnModelCallEnd(ctx, nil, nil)
	sp.OnQueryError(ctx, "travel", "x", errors.New("e"))
	sp.OnQueryEnd(ctx, "travel", "x", "y", nil)
	assert.Equal(t, 0, sp.Runs())
	assert.False(t, called)

	// run without OnQueryStart
	ctx, _ = newTestRun()
	sp.OnQueryEnd(ctx, "travel", "x", "y", nil)
	assert.False(t, called)
}
