package agent_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/conversation"
	"github.com/effective-security/mcpagent/mocks/mockllms"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/mcptest"
	"github.com/effective-security/mcpagent/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newConfig(booking, payment string) *config.Config {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk-test"
	cfg.Providers = []config.ProviderConfig{
		{ID: "booking", Address: booking},
		{ID: "payment", Address: payment},
	}
	cfg.Connect.Retries = 2
	cfg.Connect.Delay = config.Duration(10 * time.Millisecond)
	cfg.Stream.Delay = 0
	return cfg
}

func newModel(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("gpt-test").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	return m
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: content, StopReason: "stop"},
		},
	}
}

func toolCallResponse(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				StopReason: "tool_calls",
				ToolCalls: []llms.ToolCall{
					{
						ID:           id,
						Type:         "function",
						FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
					},
				},
			},
		},
	}
}

// downProber fails the probe for the hosts that contain "down"
func downProber() session.Prober {
	return session.ProberFunc(func(ctx context.Context, address string) error {
		if strings.Contains(address, "down") {
			return errors.New("connection refused")
		}
		return session.TCPProber{Timeout: time.Second}.Probe(ctx, address)
	})
}

type testEnv struct {
	booking *mcptest.Provider
	payment *mcptest.Provider
	llm     *mockllms.MockModel
	agent   *agent.Agent
}

func newEnv(t *testing.T, opts ...agent.Option) *testEnv {
	ctrl := gomock.NewController(t)
	env := &testEnv{
		booking: mcptest.Booking(t),
		payment: mcptest.Payment(t),
		llm:     newModel(ctrl),
	}
	env.agent = agent.New(newConfig(env.booking.URL(), env.payment.URL()), env.llm, opts...)
	require.NoError(t, env.agent.Initialize(context.Background()))
	t.Cleanup(func() {
		_ = env.agent.Shutdown(context.Background())
	})
	return env
}

func TestAgent_NotInitialized(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := agent.New(newConfig("http://booking-down:9001/mcp", "http://payment-down:9002/mcp"), newModel(ctrl))
	ctx := context.Background()

	_, err := a.Query(ctx, "hello")
	assert.True(t, errors.Is(err, agent.ErrNotInitialized))
	_, err = a.Stream(ctx, "hello")
	assert.True(t, errors.Is(err, agent.ErrNotInitialized))
	assert.True(t, errors.Is(a.Reset(ctx), agent.ErrNotInitialized))
	_, err = a.ConversationInfo()
	assert.True(t, errors.Is(err, agent.ErrNotInitialized))
	assert.True(t, errors.Is(a.SetAuthContext(ctx, agent.AuthContext{Phone: "+1"}), agent.ErrNotInitialized))

	h := a.Health()
	assert.Equal(t, agent.StatusStarting, h.Status)
	assert.Equal(t, "gpt-test", h.Model)
	assert.Empty(t, a.Tools())
	assert.Empty(t, a.Hints(ctx))
	assert.NotNil(t, a.Hints(ctx))
}

func TestAgent_EmptyQuery(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := env.agent.Query(ctx, q)
		assert.True(t, errors.Is(err, agent.ErrEmptyQuery))
		_, err = env.agent.Stream(ctx, q)
		assert.True(t, errors.Is(err, agent.ErrEmptyQuery))
	}
}

func TestAgent_Initialize(t *testing.T) {
	env := newEnv(t)

	var names []string
	for _, d := range env.agent.Tools() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		"booking__bookTour",
		"booking__getCustomerContext",
		"booking__ping",
		"booking__searchTours",
		"payment__processPayment",
	}, names)

	h := env.agent.Health()
	assert.Equal(t, agent.StatusHealthy, h.Status)
	assert.Equal(t, 5, h.Tools)
	assert.NotEmpty(t, h.Fingerprint)
	assert.Equal(t, map[string]session.State{
		"booking": session.Connected,
		"payment": session.Connected,
	}, h.Providers)

	info, err := env.agent.ConversationInfo()
	require.NoError(t, err)
	assert.Equal(t, conversation.Info{TotalMessages: 1, Active: true}, info)

	// second call is a no-op
	require.NoError(t, env.agent.Initialize(context.Background()))
	assert.Equal(t, h.Fingerprint, env.agent.Health().Fingerprint)
}

func TestAgent_ProviderDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	booking := mcptest.Booking(t)
	a := agent.New(newConfig(booking.URL(), "http://payment-down:9002/mcp"), newModel(ctrl),
		agent.WithProber(downProber()))
	defer a.Shutdown(context.Background())

	require.NoError(t, a.Initialize(context.Background()))

	h := a.Health()
	assert.Equal(t, agent.StatusHealthy, h.Status)
	assert.Equal(t, 4, h.Tools)
	assert.Equal(t, session.Connected, h.Providers["booking"])
	assert.Equal(t, session.Failed, h.Providers["payment"])

	for _, d := range a.Tools() {
		assert.True(t, strings.HasPrefix(d.Name, "booking__"), d.Name)
	}
}

func TestAgent_BookTour(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	args := `{"customer_id":1,"tour_code":"GOA-3N","start_date":"2026-01-01","end_date":"2026-01-04"}`
	gomock.InOrder(
		env.llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 2)
				assert.Equal(t, llms.RoleSystem, msgs[0].Role)
				assert.Equal(t, llms.RoleUser, msgs[1].Role)

				callOpts := llms.NewCallOptions(opts...)
				assert.Len(t, callOpts.Tools, 5)
				return toolCallResponse("call_1", "booking__bookTour", args), nil
			}),
		env.llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 4)
				assert.Equal(t, llms.RoleTool, msgs[3].Role)
				assert.Equal(t, "call_1", msgs[3].ToolCallID)
				assert.Contains(t, msgs[3].Content, "CONFIRMED")
				return textResponse("Your Goa tour is booked."), nil
			}),
	)

	answer, err := env.agent.Query(ctx, "Book the Goa tour for customer 1 from Jan 1 to Jan 4")
	require.NoError(t, err)
	assert.Equal(t, "Your Goa tour is booked.", answer)
	assert.Equal(t, 1, env.booking.Calls("bookTour"))
	assert.Equal(t, "GOA-3N", env.booking.LastArgs("bookTour")["tour_code"])

	history, err := env.agent.History()
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, llms.RoleUser, history[1].Role)
	assert.Equal(t, llms.RoleAssistant, history[2].Role)
	assert.Empty(t, history[2].Content)
	require.Len(t, history[2].ToolCalls, 1)
	assert.Equal(t, "booking__bookTour", history[2].ToolCalls[0].FunctionCall.Name)
	assert.Equal(t, llms.RoleTool, history[3].Role)
	assert.Equal(t, llms.RoleAssistant, history[4].Role)

	info, err := env.agent.ConversationInfo()
	require.NoError(t, err)
	assert.Equal(t, conversation.Info{TotalMessages: 5, UserTurns: 1, AssistantTurns: 2, Active: true}, info)

	require.NoError(t, env.agent.Reset(ctx))
	info, err = env.agent.ConversationInfo()
	require.NoError(t, err)
	assert.Equal(t, conversation.Info{TotalMessages: 1, Active: true}, info)
}

func TestAgent_Stream(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("Hello Goa!"), nil)

	seq, err := env.agent.Stream(ctx, "hi")
	require.NoError(t, err)

	var fragments []string
	for f := range seq {
		fragments = append(fragments, f)
	}
	assert.Len(t, fragments, 10)
	assert.Equal(t, "Hello Goa!", strings.Join(fragments, ""))

	env.llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("rate limited"))

	seq, err = env.agent.Stream(ctx, "again")
	require.NoError(t, err)
	fragments = nil
	for f := range seq {
		fragments = append(fragments, f)
	}
	assert.Equal(t, []string{"Sorry, streaming failed."}, fragments)

	// the failed turn is not committed
	info, err := env.agent.ConversationInfo()
	require.NoError(t, err)
	assert.Equal(t, 3, info.TotalMessages)
}

func TestAgent_SetAuthContext(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	auth := agent.AuthContext{Phone: "+919876543210", Email: "asha@example.com"}
	require.NoError(t, env.agent.SetAuthContext(ctx, auth))
	require.NoError(t, env.agent.SetAuthContext(ctx, auth))
	assert.Equal(t, 1, env.booking.Calls("getCustomerContext"))

	history, err := env.agent.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, llms.RoleSystem, history[1].Role)
	assert.Equal(t, "Authenticated user context: name=Asha Rao, phone=+919876543210, email=asha@example.com.", history[1].Content)

	// empty context is ignored
	require.NoError(t, env.agent.SetAuthContext(ctx, agent.AuthContext{}))

	require.NoError(t, env.agent.Reset(ctx))
	phone := gofakeit.Phone()
	email := gofakeit.Email()
	require.NoError(t, env.agent.SetAuthContext(ctx, agent.AuthContext{Phone: phone, Email: email}))
	assert.Equal(t, 2, env.booking.Calls("getCustomerContext"))

	history, err = env.agent.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Authenticated user context: email="+email+", phone="+phone+". No customer profile found yet.", history[1].Content)

	// without phone no lookup is done
	require.NoError(t, env.agent.Reset(ctx))
	require.NoError(t, env.agent.SetAuthContext(ctx, agent.AuthContext{Email: email}))
	assert.Equal(t, 2, env.booking.Calls("getCustomerContext"))
	history, err = env.agent.History()
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAgent_SetAuthContext_ProviderDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	payment := mcptest.Payment(t)
	a := agent.New(newConfig("http://booking-down:9001/mcp", payment.URL()), newModel(ctrl),
		agent.WithProber(downProber()))
	defer a.Shutdown(context.Background())
	ctx := context.Background()
	require.NoError(t, a.Initialize(ctx))

	require.NoError(t, a.SetAuthContext(ctx, agent.AuthContext{Phone: "+919876543210", Email: "asha@example.com"}))
	history, err := a.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Authenticated user context: email=asha@example.com, phone=+919876543210. No customer profile found yet.", history[1].Content)
}

func TestAgent_Hints(t *testing.T) {
	ctrl := gomock.NewController(t)
	hintsLLM := newModel(ctrl)
	env := newEnv(t, agent.WithHintsModel(hintsLLM))
	ctx := context.Background()

	long := strings.Repeat("a", 200)
	hintsLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 2)
			assert.Contains(t, msgs[0].Content, "Goa Beach Escape (code GOA-3N) to Goa, price 15000")
			assert.Contains(t, msgs[0].Content, "LEH-6N")

			callOpts := llms.NewCallOptions(opts...)
			assert.Equal(t, 0.4, callOpts.Temperature)
			assert.Equal(t, 150, callOpts.MaxTokens)
			assert.Empty(t, callOpts.Tools)
			return textResponse("Here you go: [\"Book Goa Beach Escape\", \"Book Goa Beach Escape\", \"" + long + "\", \"Ask about Kerala\", \"Leh dates\", \"Pay now\", \"Extra\"]"), nil
		})

	hints := env.agent.Hints(ctx)
	assert.Equal(t, []string{
		"Book Goa Beach Escape",
		strings.Repeat("a", 120),
		"Ask about Kerala",
		"Leh dates",
		"Pay now",
	}, hints)
	assert.Equal(t, 1, env.booking.Calls("searchTours"))

	hintsLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("rate limited"))
	hints = env.agent.Hints(ctx)
	assert.NotNil(t, hints)
	assert.Empty(t, hints)

	hintsLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("Sorry, I have no suggestions."), nil)
	assert.Empty(t, env.agent.Hints(ctx))

	// hints never change the conversation
	info, err := env.agent.ConversationInfo()
	require.NoError(t, err)
	assert.Equal(t, 1, info.TotalMessages)
}

func TestAgent_Shutdown(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	require.NoError(t, env.agent.Shutdown(ctx))
	require.NoError(t, env.agent.Shutdown(ctx))

	_, err := env.agent.Query(ctx, "hello")
	assert.True(t, errors.Is(err, agent.ErrNotInitialized))
	assert.True(t, errors.Is(env.agent.Initialize(ctx), agent.ErrNotInitialized))

	h := env.agent.Health()
	assert.Equal(t, agent.StatusShuttingDown, h.Status)
	assert.Equal(t, session.Disconnected, h.Providers["booking"])
	assert.Equal(t, session.Disconnected, h.Providers["payment"])
}

func TestAgent_StartupDelayCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := newConfig("http://booking-down:9001/mcp", "http://payment-down:9002/mcp")
	cfg.Connect.StartupDelay = config.Duration(time.Minute)
	a := agent.New(cfg, newModel(ctrl), agent.WithProber(downProber()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.Initialize(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, agent.StatusStarting, a.Health().Status)
}
