package conversation_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/conversation"
	"github.com/effective-security/mcpagent/mocks/mockllms"
	"github.com/effective-security/mcpagent/mocks/mocktools"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/mcpagent/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const sysPrompt = "You are a test assistant."

type testRouter map[string]tools.ITool

func (r testRouter) Catalog() []llms.Tool {
	var list []llms.Tool
	for name, t := range r {
		list = append(list, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return list
}

func (r testRouter) Lookup(name string) (tools.ITool, bool) {
	t, ok := r[name]
	return t, ok
}

func newModel(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("gpt-test").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	return m
}

func newTool(ctrl *gomock.Controller, name string) *mocktools.MockITool {
	t := mocktools.NewMockITool(ctrl)
	t.EXPECT().Name().Return(name).AnyTimes()
	t.EXPECT().Description().Return("test tool " + name).AnyTimes()
	t.EXPECT().Parameters().Return(schema.New(nil, nil).Parameters()).AnyTimes()
	return t
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    content,
				StopReason: "stop",
				GenerationInfo: map[string]any{
					"InputTokens":  10,
					"OutputTokens": 5,
					"TotalTokens":  15,
				},
			},
		},
	}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				StopReason: "tool_calls",
				ToolCalls:  calls,
			},
		},
	}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNew(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := conversation.New(newModel(ctrl), nil, sysPrompt)

	assert.Equal(t, conversation.DefaultName, e.Name())
	assert.NotEmpty(t, e.ChatID())
	assert.Equal(t, conversation.Idle, e.State())
	assert.Equal(t, "idle", e.State().String())
	assert.Equal(t, "iterating", conversation.Iterating.String())

	h := e.History()
	require.Len(t, h, 1)
	assert.Equal(t, llms.RoleSystem, h[0].Role)
	assert.Equal(t, sysPrompt, h[0].Content)

	assert.Equal(t, conversation.Info{TotalMessages: 1, Active: true}, e.Info())
	assert.Empty(t, e.LastAnswer())

	cfg := conversation.NewConfig(conversation.WithMaxIterations(0), nil)
	assert.Equal(t, 1, cfg.MaxIterations)
	assert.True(t, cfg.ParallelToolCalls)
}

func TestQuery_FinalAnswer(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)

	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 2)
			assert.Equal(t, llms.RoleSystem, msgs[0].Role)
			assert.Equal(t, llms.RoleUser, msgs[1].Role)
			assert.Equal(t, "hello", msgs[1].Content)

			o := llms.NewCallOptions(opts...)
			assert.Empty(t, o.Tools)
			assert.Nil(t, o.ToolChoice)
			assert.Equal(t, "gpt-4o", o.Model)
			return textResponse("Hi there"), nil
		})

	var out bytes.Buffer
	e := conversation.New(m, testRouter{}, sysPrompt,
		conversation.WithModel("gpt-4o"),
		conversation.WithCallback(callbacks.NewPrinter(&out, callbacks.ModeVerbose)),
	)

	answer, err := e.Query(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", answer)
	assert.Equal(t, "Hi there", e.LastAnswer())
	assert.Equal(t, conversation.Idle, e.State())

	h := e.History()
	require.Len(t, h, 3)
	assert.Equal(t, llms.RoleAssistant, h[2].Role)
	assert.Equal(t, "Hi there", h[2].Content)

	assert.Equal(t, conversation.Info{TotalMessages: 3, UserTurns: 1, AssistantTurns: 1, Active: true}, e.Info())
	assert.Contains(t, out.String(), "Query Start: agent")
	assert.Contains(t, out.String(), "Query End: agent")
}

func TestQuery_EmptyContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse(""), nil)

	e := conversation.New(m, nil, sysPrompt)
	answer, err := e.Query(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, conversation.NoResponse, answer)
	assert.Equal(t, conversation.NoResponse, e.History()[2].Content)
}

func TestQuery_ToolCalls(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)

	search := newTool(ctrl, "booking__searchTours")
	pay := newTool(ctrl, "payment__processPayment")
	router := testRouter{
		"booking__searchTours":    search,
		"payment__processPayment": pay,
	}

	search.EXPECT().Call(gomock.Any(), `{"destination":"Goa"}`).Return(`{"tours":[{"code":"GOA-3N"}]}`, nil)
	pay.EXPECT().Call(gomock.Any(), `{"amount":1}`).Return(`{"success":true}`, nil)

	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
				o := llms.NewCallOptions(opts...)
				assert.Len(t, o.Tools, 2)
				assert.Equal(t, "auto", o.ToolChoice)
				require.NotNil(t, o.ParallelToolCalls)
				assert.True(t, *o.ParallelToolCalls)

				return toolCallResponse(
					toolCall("call_1", "booking__searchTours", `{"destination":"Goa"}`),
					toolCall("call_2", "booking__cancelTour", `{}`),
					toolCall("call_3", "payment__processPayment", `{"amount":1}`),
				), nil
			}),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
				// system, user, assistant with calls, 3 tool results
				require.Len(t, msgs, 6)
				return textResponse("Found GOA-3N"), nil
			}),
	)

	var out bytes.Buffer
	e := conversation.New(m, router, sysPrompt,
		conversation.WithCallback(callbacks.NewPrinter(&out, callbacks.ModeDefault)))

	answer, err := e.Query(ctx, "find tours to Goa")
	require.NoError(t, err)
	assert.Equal(t, "Found GOA-3N", answer)

	h := e.History()
	require.Len(t, h, 7)

	asst := h[2]
	assert.Equal(t, llms.RoleAssistant, asst.Role)
	assert.Equal(t, "", asst.Content)
	require.Len(t, asst.ToolCalls, 3)
	assert.Equal(t, "call_1", asst.ToolCalls[0].ID)
	assert.Equal(t, "booking__cancelTour", asst.ToolCalls[1].FunctionCall.Name)

	for i, id := range []string{"call_1", "call_2", "call_3"} {
		msg := h[3+i]
		assert.Equal(t, llms.RoleTool, msg.Role)
		assert.Equal(t, id, msg.ToolCallID)
	}
	assert.Equal(t, `{"tours":[{"code":"GOA-3N"}]}`, h[3].Content)
	assert.Equal(t, `{"error":"UNKNOWN_TOOL"}`, h[4].Content)
	assert.Equal(t, "booking__cancelTour", h[4].Name)
	assert.Equal(t, `{"success":true}`, h[5].Content)
	assert.Equal(t, "Found GOA-3N", h[6].Content)

	assert.Equal(t, conversation.Info{TotalMessages: 7, UserTurns: 1, AssistantTurns: 2, Active: true}, e.Info())
	assert.Contains(t, out.String(), "Tool Not Found: booking__cancelTour")
	assert.Contains(t, out.String(), "Tool Start: booking__searchTours")
}

func TestQuery_ToolFailures(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)

	invalid := newTool(ctrl, "booking__bookTour")
	failed := newTool(ctrl, "booking__getCustomerContext")
	boom := newTool(ctrl, "booking__ping")
	router := testRouter{
		"booking__bookTour":           invalid,
		"booking__getCustomerContext": failed,
		"booking__ping":               boom,
	}

	invalid.EXPECT().Call(gomock.Any(), gomock.Any()).
		Return("", &schema.ValidationError{Issues: []string{`missing required field "tour_code"`}})
	failed.EXPECT().Call(gomock.Any(), gomock.Any()).
		Return("", tools.ResultError("CUSTOMER_NOT_FOUND"))
	boom.EXPECT().Call(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string) (string, error) {
			panic("connection reset")
		})

	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(toolCallResponse(
			toolCall("a", "booking__bookTour", `{}`),
			toolCall("b", "booking__getCustomerContext", `{"phone":"1"}`),
			toolCall("c", "booking__ping", `{}`),
		), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("sorry"), nil),
	)

	e := conversation.New(m, router, sysPrompt, conversation.WithParallelToolCalls(false))
	answer, err := e.Query(ctx, "book it")
	require.NoError(t, err)
	assert.Equal(t, "sorry", answer)

	h := e.History()
	require.Len(t, h, 7)
	assert.Equal(t, `{"error":"INVALID_ARGUMENTS","message":"invalid arguments: missing required field \"tour_code\""}`, h[3].Content)
	assert.Equal(t, `{"error":"TOOL_ERROR","message":"CUSTOMER_NOT_FOUND"}`, h[4].Content)
	assert.Contains(t, h[5].Content, `"error":"TOOL_FAILED"`)
	assert.Contains(t, h[5].Content, "connection reset")
}

func TestQuery_MissingToolCallID(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)
	ping := newTool(ctrl, "booking__ping")
	ping.EXPECT().Call(gomock.Any(), "").Return("", nil)

	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(toolCallResponse(
			llms.ToolCall{FunctionCall: &llms.FunctionCall{Name: "booking__ping"}},
		), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("pong"), nil),
	)

	e := conversation.New(m, testRouter{"booking__ping": ping}, sysPrompt)
	_, err := e.Query(context.Background(), "ping")
	require.NoError(t, err)

	h := e.History()
	require.Len(t, h, 5)
	assert.Equal(t, "booking__ping_0", h[2].ToolCalls[0].ID)
	assert.Equal(t, "function", h[2].ToolCalls[0].Type)
	assert.Equal(t, "booking__ping_0", h[3].ToolCallID)
	assert.Equal(t, "{}", h[3].Content)
}

func TestQuery_MaxIterations(t *testing.T) {
	tcases := []struct {
		name  string
		opts  []conversation.Option
		calls int
	}{
		{name: "default", calls: conversation.DefaultMaxIterations},
		{name: "three", opts: []conversation.Option{conversation.WithMaxIterations(3)}, calls: 3},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := newModel(ctrl)
			m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(toolCallResponse(toolCall("", "booking__unknown", `{}`)), nil).
				Times(tc.calls)

			e := conversation.New(m, testRouter{}, sysPrompt, tc.opts...)
			answer, err := e.Query(context.Background(), "loop forever")
			require.NoError(t, err)
			assert.Equal(t, conversation.FallbackMessage, answer)
			assert.Empty(t, e.LastAnswer())

			// system, user, and a call with a result per iteration
			info := e.Info()
			assert.Equal(t, 2+2*tc.calls, info.TotalMessages)
			assert.Equal(t, tc.calls, info.AssistantTurns)
		})
	}
}

func TestQuery_ModelError(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)
	ping := newTool(ctrl, "booking__ping")
	ping.EXPECT().Call(gomock.Any(), gomock.Any()).Return("pong", nil)

	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolCallResponse(toolCall("1", "booking__ping", `{}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("rate limited")),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{}, nil),
	)

	var out bytes.Buffer
	e := conversation.New(m, testRouter{"booking__ping": ping}, sysPrompt,
		conversation.WithCallback(callbacks.NewPrinter(&out, callbacks.ModeDefault)))

	_, err := e.Query(ctx, "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Len(t, e.History(), 1, "failed turn must not be committed")
	assert.Contains(t, out.String(), "Query Error: agent")

	_, err = e.Query(ctx, "ping")
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrEmptyResponse))
	assert.Len(t, e.History(), 1)
}

func TestQuery_Cancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := conversation.New(m, nil, sysPrompt)
	_, err := e.Query(ctx, "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, e.History(), 1)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("ok"), nil).Times(2)

	e := conversation.New(m, nil, sysPrompt)
	for range 2 {
		_, err := e.Query(ctx, "hello")
		require.NoError(t, err)
	}
	require.NoError(t, e.AppendSystemNote(ctx, "Authenticated user context: email=a@b.c"))
	assert.Len(t, e.History(), 6)

	e.Reset(ctx)
	h := e.History()
	require.Len(t, h, 1)
	assert.Equal(t, sysPrompt, h[0].Content)
	assert.Empty(t, e.LastAnswer())

	// reset of the empty conversation is fine
	e.Reset(ctx)
	assert.Len(t, e.History(), 1)
}

func TestBusy_ResetWins(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
			close(started)
			<-release
			return textResponse("done"), nil
		})

	e := conversation.New(m, nil, sysPrompt)

	type result struct {
		answer string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		answer, err := e.Query(ctx, "slow")
		done <- result{answer, err}
	}()

	<-started
	assert.Equal(t, conversation.Iterating, e.State())

	_, err := e.Query(ctx, "second")
	assert.True(t, errors.Is(err, conversation.ErrBusy))
	err = e.AppendSystemNote(ctx, "note")
	assert.True(t, errors.Is(err, conversation.ErrBusy))
	err = e.Restore(ctx)
	assert.NoError(t, err, "restore without store is noop")

	e.Reset(ctx)
	close(release)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "done", res.answer)
	case <-time.After(5 * time.Second):
		t.Fatal("query did not complete")
	}

	assert.Len(t, e.History(), 1, "reset wins over the turn in flight")
	assert.Equal(t, conversation.Idle, e.State())
}

func TestStore_Restore(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("hi"), nil)

	st := store.NewMemoryStore()
	e := conversation.New(m, nil, sysPrompt,
		conversation.WithStore(st),
		conversation.WithChatID("chat1"),
		conversation.WithName("travel"),
	)
	assert.Equal(t, "chat1", e.ChatID())
	assert.Equal(t, "travel", e.Name())

	_, err := e.Query(ctx, "hello")
	require.NoError(t, err)
	require.NoError(t, e.AppendSystemNote(ctx, "note"))

	stored, err := st.Messages(ctx, "chat1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	restored := conversation.New(m, nil, sysPrompt,
		conversation.WithStore(st),
		conversation.WithChatID("chat1"),
	)
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, e.History(), restored.History())
	assert.Equal(t, "hi", restored.LastAnswer())

	restored.Reset(ctx)
	stored, err = st.Messages(ctx, "chat1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestLastUserQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("hi"), nil)

	e := conversation.New(m, nil, sysPrompt)
	assert.Empty(t, e.LastUserQuery())
	_, err := e.Query(context.Background(), " tours in Goa ")
	require.NoError(t, err)
	assert.Equal(t, "tours in Goa", e.LastUserQuery())
}
