package conversation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "conversation")

const (
	// FallbackMessage is returned when the query reached the iterations limit.
	FallbackMessage = "Agent reached maximum iterations. Please try again."
	// NoResponse is the answer when the model returned empty content.
	NoResponse = "No response"
)

var (
	// ErrBusy is returned when the engine is iterating another query.
	ErrBusy = errors.New("conversation is busy")
	// ErrEmptyResponse is returned when the model returned no choices.
	ErrEmptyResponse = errors.New("model returned empty response")
)

// State of the Engine.
type State int32

const (
	// Idle accepts queries
	Idle State = iota
	// Iterating is processing a query
	Iterating
)

func (s State) String() string {
	if s == Iterating {
		return "iterating"
	}
	return "idle"
}

// Router resolves the tool names requested by the model.
type Router interface {
	// Catalog returns the tool definitions for the model
	Catalog() []llms.Tool
	// Lookup returns the tool by the namespaced name
	Lookup(name string) (tools.ITool, bool)
}

// Info is the summary of the history.
type Info struct {
	TotalMessages  int  `json:"total_messages" yaml:"total_messages"`
	UserTurns      int  `json:"user_turns" yaml:"user_turns"`
	AssistantTurns int  `json:"assistant_turns" yaml:"assistant_turns"`
	Active         bool `json:"conversation_active" yaml:"conversation_active"`
}

// Engine is the conversation engine.
// The history always starts with the system message.
type Engine struct {
	llm    llms.Model
	router Router
	cfg    *Config
	chatID string

	busy atomic.Bool

	lock       sync.RWMutex
	system     llms.Message
	history    []llms.Message
	generation uint64
	lastAnswer string
}

// New returns the Engine with the history that has only the system message.
// The router can be nil, then the model is called without tools.
func New(llm llms.Model, router Router, systemPrompt string, opts ...Option) *Engine {
	cfg := NewConfig(opts...)
	if router == nil {
		router = emptyRouter{}
	}
	system := llms.TextMessage(llms.RoleSystem, systemPrompt)
	return &Engine{
		llm:     llm,
		router:  router,
		cfg:     cfg,
		chatID:  values.StringsCoalesce(cfg.ChatID, chatmodel.NewChatID()),
		system:  system,
		history: []llms.Message{system},
	}
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.cfg.Name
}

// ChatID returns the ID of the history in the store.
func (e *Engine) ChatID() string {
	return e.chatID
}

// State returns the current state.
func (e *Engine) State() State {
	if e.busy.Load() {
		return Iterating
	}
	return Idle
}

// History returns a copy of the history.
func (e *Engine) History() []llms.Message {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return llms.CloneMessages(e.history)
}

// Info returns the summary of the history.
func (e *Engine) Info() Info {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return Info{
		TotalMessages:  len(e.history),
		UserTurns:      llmutils.CountRoles(e.history, llms.RoleUser),
		AssistantTurns: llmutils.CountRoles(e.history, llms.RoleAssistant),
		Active:         true,
	}
}

// LastAnswer returns the last final answer, or empty string.
func (e *Engine) LastAnswer() string {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.lastAnswer
}

// Restore loads the history from the store.
func (e *Engine) Restore(ctx context.Context) error {
	if e.cfg.Store == nil {
		return nil
	}
	if !e.busy.CompareAndSwap(false, true) {
		return errors.WithStack(ErrBusy)
	}
	defer e.busy.Store(false)

	msgs, err := e.cfg.Store.Messages(ctx, e.chatID)
	if err != nil {
		return errors.WithMessagef(err, "failed to restore chat %s", e.chatID)
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	e.history = append([]llms.Message{e.system}, msgs...)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llms.RoleAssistant && len(msgs[i].ToolCalls) == 0 {
			e.lastAnswer = msgs[i].Content
			break
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", e.cfg.Name,
		"chat_id", e.chatID,
		"status", "restored",
		"messages", len(msgs))
	return nil
}

// Reset drops the history to the system message.
// A query in flight is not committed.
func (e *Engine) Reset(ctx context.Context) {
	e.lock.Lock()
	e.history = []llms.Message{e.system}
	e.lastAnswer = ""
	e.generation++
	e.lock.Unlock()

	if e.cfg.Store != nil {
		if err := e.cfg.Store.Reset(ctx, e.chatID); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", e.cfg.Name,
				"chat_id", e.chatID,
				"status", "store_reset_failed",
				"err", err.Error())
		}
	}

	logger.ContextKV(ctx, xlog.INFO,
		"agent", e.cfg.Name,
		"status", "reset")

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnReset(ctx, e.cfg.Name)
	}
}

// AppendSystemNote adds the system message to the history.
func (e *Engine) AppendSystemNote(ctx context.Context, note string) error {
	if !e.busy.CompareAndSwap(false, true) {
		return errors.WithStack(ErrBusy)
	}
	defer e.busy.Store(false)

	e.lock.RLock()
	gen := e.generation
	e.lock.RUnlock()

	e.commit(ctx, gen, []llms.Message{llms.TextMessage(llms.RoleSystem, note)}, "")
	return nil
}

// Query answers the user query.
// The returned error is the model error, tool errors are reported to the model.
func (e *Engine) Query(ctx context.Context, text string) (string, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return "", errors.WithStack(ErrBusy)
	}
	defer e.busy.Store(false)

	ctx, chatRun := chatmodel.StartRun(ctx, e.chatID)
	defer metricskey.PerfQuery.MeasureSince(chatRun.Started(), e.cfg.Name)

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnQueryStart(ctx, e.cfg.Name, text)
	}

	answer, turn, err := e.run(ctx, text)
	if err != nil {
		metricskey.StatsQueryFailed.IncrCounter(1, e.cfg.Name)
		logger.ContextKV(ctx, xlog.ERROR,
			"agent", e.cfg.Name,
			"run_id", chatRun.ID(),
			"status", "query_failed",
			"input", slices.StringUpto(text, 64),
			"err", err.Error())
		if e.cfg.Callback != nil {
			e.cfg.Callback.OnQueryError(ctx, e.cfg.Name, text, err)
		}
		return "", err
	}

	metricskey.StatsQuerySucceeded.IncrCounter(1, e.cfg.Name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", e.cfg.Name,
		"run_id", chatRun.ID(),
		"status", "query_completed",
		"messages", len(turn),
		"answer", slices.StringUpto(answer, 64))

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnQueryEnd(ctx, e.cfg.Name, text, answer, turn)
	}
	return answer, nil
}

// run is the bounded loop of model calls.
// The turn is committed on the final answer, or on the iterations limit.
func (e *Engine) run(ctx context.Context, text string) (string, []llms.Message, error) {
	e.lock.RLock()
	base := llms.CloneMessages(e.history)
	gen := e.generation
	e.lock.RUnlock()

	logger.ContextKV(ctx, xlog.INFO,
		"agent", e.cfg.Name,
		"status", "processing_query",
		"input", slices.StringUpto(text, 64),
		"conversation_turn", len(base))

	turn := []llms.Message{llms.TextMessage(llms.RoleUser, text)}
	callOpts := e.callOptions(e.router.Catalog())

	for iteration := 1; iteration <= e.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", nil, errors.WithStack(err)
		}

		payload := make([]llms.Message, 0, len(base)+len(turn))
		payload = append(payload, base...)
		payload = append(payload, turn...)

		choice, err := e.generate(ctx, payload, callOpts)
		if err != nil {
			return "", nil, err
		}

		logger.ContextKV(ctx, xlog.DEBUG,
			"agent", e.cfg.Name,
			"iteration", iteration,
			"stop_reason", choice.StopReason,
			"tool_calls", len(choice.ToolCalls))

		if len(choice.ToolCalls) == 0 {
			answer := values.StringsCoalesce(choice.Content, NoResponse)
			turn = append(turn, llms.TextMessage(llms.RoleAssistant, answer))
			e.commit(ctx, gen, turn, answer)
			return answer, turn, nil
		}

		calls := normalizeToolCalls(choice.ToolCalls)
		turn = append(turn, llms.MessageFromToolCalls(choice.Content, calls...))

		outcomes := e.dispatch(ctx, calls)
		for _, o := range outcomes {
			turn = append(turn, llms.MessageFromToolResponse(llms.ToolCallResponse{
				ToolCallID: o.CallID,
				Name:       o.Name,
				Content:    o.Payload,
			}))
		}
	}

	metricskey.StatsQueryIterationsExceeded.IncrCounter(1, e.cfg.Name)
	logger.ContextKV(ctx, xlog.WARNING,
		"agent", e.cfg.Name,
		"status", "max_iterations_reached",
		"max_iterations", e.cfg.MaxIterations,
		"input", slices.StringUpto(text, 64))

	e.commit(ctx, gen, turn, "")
	return FallbackMessage, turn, nil
}

// generate calls the model and returns the first choice.
func (e *Engine) generate(ctx context.Context, payload []llms.Message, callOpts []llms.CallOption) (*llms.ContentChoice, error) {
	agentName := e.cfg.Name
	modelName := values.StringsCoalesce(e.cfg.Model, e.llm.GetName())

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnModelCallStart(ctx, e.llm, payload)
	}

	bytesSent := llmutils.CountMessagesContentSize(payload)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(payload)), agentName, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), agentName, modelName)

	started := time.Now()
	resp, err := e.llm.GenerateContent(ctx, payload, callOpts...)
	metricskey.PerfLLMCall.MeasureSince(started, agentName, modelName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to generate content from model %s", modelName)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, errors.Wrapf(ErrEmptyResponse, "model %s", modelName)
	}

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnModelCallEnd(ctx, e.llm, resp)
	}

	bytesReceived := llmutils.CountResponseContentSize(resp)
	metricskey.StatsLLMBytesReceived.IncrCounter(float64(bytesReceived), agentName, modelName)
	metricskey.StatsLLMBytesTotal.IncrCounter(float64(bytesSent+bytesReceived), agentName, modelName)

	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), agentName, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), agentName, modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), agentName, modelName)

	return resp.Choices[0], nil
}

func (e *Engine) callOptions(catalog []llms.Tool) []llms.CallOption {
	var opts []llms.CallOption
	if e.cfg.Model != "" {
		opts = append(opts, llms.WithModel(e.cfg.Model))
	}
	if e.cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(e.cfg.Temperature))
	}
	if e.cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(e.cfg.MaxTokens))
	}
	if len(catalog) > 0 {
		opts = append(opts,
			llms.WithTools(catalog),
			llms.WithToolChoice(string(llms.FunctionCallBehaviorAuto)),
		)
		if e.llm.GetProviderType().Supports(llms.CapabilityMultiToolCalling) {
			opts = append(opts, llms.WithParallelToolCalls(e.cfg.ParallelToolCalls))
		}
	}
	return opts
}

// commit appends the turn to the history, unless Reset happened
// after the turn started. The answer is not recorded when empty.
func (e *Engine) commit(ctx context.Context, gen uint64, turn []llms.Message, answer string) bool {
	e.lock.Lock()
	if gen != e.generation {
		e.lock.Unlock()
		logger.ContextKV(ctx, xlog.INFO,
			"agent", e.cfg.Name,
			"status", "turn_discarded_after_reset",
			"messages", len(turn))
		return false
	}
	e.history = append(e.history, llms.CloneMessages(turn)...)
	if answer != "" {
		e.lastAnswer = answer
	}
	e.lock.Unlock()

	if e.cfg.Store != nil {
		if err := e.cfg.Store.Add(ctx, e.chatID, turn...); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", e.cfg.Name,
				"chat_id", e.chatID,
				"status", "store_add_failed",
				"err", err.Error())
		}
	}
	return true
}

type emptyRouter struct{}

func (emptyRouter) Catalog() []llms.Tool { return nil }

func (emptyRouter) Lookup(string) (tools.ITool, bool) { return nil, false }

// LastUserQuery returns the last user message in the history.
func (e *Engine) LastUserQuery() string {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return strings.TrimSpace(llmutils.FindLastUserQuestion(e.history))
}
