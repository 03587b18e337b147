package agent

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/conversation"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/prompts"
	"github.com/effective-security/mcpagent/registry"
	"github.com/effective-security/mcpagent/session"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/mcpagent/stream"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "agent")

var (
	// ErrNotInitialized is returned before Initialize completed,
	// or after Shutdown started.
	ErrNotInitialized = errors.New("agent is not initialized")
	// ErrEmptyQuery is returned when the query is empty or whitespace.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

const (
	stateNew int32 = iota
	stateInitializing
	stateReady
	stateShutdown
)

// Health statuses
const (
	StatusStarting     = "starting"
	StatusHealthy      = "healthy"
	StatusShuttingDown = "shutting_down"
)

// Option configures the Agent
type Option func(*options)

type options struct {
	sessionOpts []session.Option
	store       store.MessageStore
	callback    conversation.Callback
	hintsLLM    llms.Model
}

// WithDialer sets the transport dialer of the provider sessions.
func WithDialer(d session.Dialer) Option {
	return func(o *options) {
		o.sessionOpts = append(o.sessionOpts, session.WithDialer(d))
	}
}

// WithProber sets the reachability prober of the provider sessions.
func WithProber(p session.Prober) Option {
	return func(o *options) {
		o.sessionOpts = append(o.sessionOpts, session.WithProber(p))
	}
}

// WithStore persists the conversation history.
func WithStore(st store.MessageStore) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithCallback sets the conversation events handler,
// by default the events are logged.
func WithCallback(cb conversation.Callback) Option {
	return func(o *options) {
		o.callback = cb
	}
}

// WithHintsModel sets the model for hints, by default the query model is used.
func WithHintsModel(llm llms.Model) Option {
	return func(o *options) {
		o.hintsLLM = llm
	}
}

// Health is the status of the agent
type Health struct {
	Status      string                   `json:"status" yaml:"status"`
	Model       string                   `json:"model" yaml:"model"`
	Providers   map[string]session.State `json:"providers" yaml:"providers"`
	Tools       int                      `json:"tools" yaml:"tools"`
	Fingerprint string                   `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
}

// runtime is built by Initialize
type runtime struct {
	registry *registry.Registry
	engine   *conversation.Engine
	streamer *stream.Adapter
}

// Agent orchestrates the provider sessions, the tool registry
// and the conversation engine.
type Agent struct {
	cfg      *config.Config
	llm      llms.Model
	hintsLLM llms.Model
	opts     options
	manager  *session.Manager

	state   atomic.Int32
	runtime atomic.Pointer[runtime]

	lock       sync.Mutex
	initCancel context.CancelFunc

	authLock   sync.Mutex
	auth       AuthContext
	authLoaded bool
}

// New returns the Agent, Initialize must be called before use.
func New(cfg *config.Config, llm llms.Model, opts ...Option) *Agent {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.callback == nil {
		o.callback = callbacks.NewPackageLogger(logger)
	}

	sessionOpts := append([]session.Option{
		session.WithRetry(cfg.Connect.Retries, cfg.Connect.Delay.D()),
	}, o.sessionOpts...)

	a := &Agent{
		cfg:      cfg,
		llm:      llm,
		hintsLLM: o.hintsLLM,
		opts:     o,
		manager:  session.NewManager(sessionOpts...),
	}
	if a.hintsLLM == nil {
		a.hintsLLM = llm
	}
	return a
}

// Initialize connects the configured providers and builds the tool catalog.
// Unavailable providers are skipped, their tools are not offered to the model.
func (a *Agent) Initialize(ctx context.Context) error {
	if !a.state.CompareAndSwap(stateNew, stateInitializing) {
		switch a.state.Load() {
		case stateReady:
			return nil
		case stateShutdown:
			return errors.Wrap(ErrNotInitialized, "agent is shut down")
		}
		return errors.New("agent is initializing")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.lock.Lock()
	a.initCancel = cancel
	a.lock.Unlock()

	rt, err := a.initialize(ctx)
	if err != nil {
		a.state.CompareAndSwap(stateInitializing, stateNew)
		return err
	}

	a.runtime.Store(rt)
	if !a.state.CompareAndSwap(stateInitializing, stateReady) {
		return errors.Wrap(ErrNotInitialized, "agent is shut down")
	}
	return nil
}

func (a *Agent) initialize(ctx context.Context) (*runtime, error) {
	started := time.Now()
	if delay := a.cfg.Connect.StartupDelay.D(); delay > 0 {
		logger.ContextKV(ctx, xlog.INFO, "status", "startup_delay", "delay", delay.String())
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Wrap(ctx.Err(), "initialize cancelled")
		case <-t.C:
		}
	}

	providers := make([]session.Provider, 0, len(a.cfg.Providers))
	for _, p := range a.cfg.Providers {
		providers = append(providers, session.Provider{ID: p.ID, Address: p.Address})
	}
	live := a.manager.ConnectAll(ctx, providers)
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "initialize cancelled")
	}

	reg := registry.New()
	for _, p := range providers {
		s, ok := live[p.ID]
		if !ok {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "provider_skipped",
				"provider", p.ID,
				"address", p.Address)
			continue
		}
		reg.RegisterAll(ctx, p.ID, s)
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "catalog_ready",
		"providers", len(live),
		"tool_count", reg.Len(),
		"fingerprint", reg.Fingerprint())

	sys, err := prompts.SystemPrompt(prompts.SystemData{
		Persona: a.cfg.Agent.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	engineOpts := []conversation.Option{
		conversation.WithName(a.cfg.Agent.Name),
		conversation.WithMaxIterations(a.cfg.Agent.MaxIterations),
		conversation.WithTemperature(a.cfg.Agent.Temperature),
		conversation.WithParallelToolCalls(a.cfg.Agent.ParallelToolCalls),
		conversation.WithCallback(a.opts.callback),
		conversation.WithChatID(a.cfg.Redis.ChatID),
	}
	if a.opts.store != nil {
		engineOpts = append(engineOpts, conversation.WithStore(a.opts.store))
	}
	engine := conversation.New(a.llm, reg, sys, engineOpts...)
	if err = engine.Restore(ctx); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "restore_failed",
			"chat_id", engine.ChatID(),
			"err", err.Error())
	}

	streamer := stream.New(engine,
		stream.WithName(a.cfg.Agent.Name),
		stream.WithChunkSize(a.cfg.Stream.ChunkSize),
		stream.WithDelay(a.cfg.Stream.Delay.D()),
	)

	logger.ContextKV(ctx, xlog.INFO,
		"status", "initialized",
		"agent", engine.Name(),
		"chat_id", engine.ChatID(),
		"model", a.llm.GetName(),
		"elapsed", time.Since(started).String())

	return &runtime{
		registry: reg,
		engine:   engine,
		streamer: streamer,
	}, nil
}

// Shutdown releases every provider session.
// The agent rejects new calls as soon as Shutdown starts.
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.state.Swap(stateShutdown) == stateShutdown {
		return nil
	}

	a.lock.Lock()
	if a.initCancel != nil {
		a.initCancel()
	}
	a.lock.Unlock()

	err := a.manager.Close()
	logger.ContextKV(ctx, xlog.INFO, "status", "shutdown")
	return err
}

func (a *Agent) ready() (*runtime, error) {
	if a.state.Load() != stateReady {
		return nil, errors.WithStack(ErrNotInitialized)
	}
	rt := a.runtime.Load()
	if rt == nil {
		return nil, errors.WithStack(ErrNotInitialized)
	}
	return rt, nil
}

// Query returns the final answer for the user query.
func (a *Agent) Query(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", errors.WithStack(ErrEmptyQuery)
	}
	rt, err := a.ready()
	if err != nil {
		return "", err
	}
	return rt.engine.Query(ctx, query)
}

// Stream returns the answer fragments for the user query.
// The query starts when the sequence is iterated.
func (a *Agent) Stream(ctx context.Context, query string) (iter.Seq[string], error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.WithStack(ErrEmptyQuery)
	}
	rt, err := a.ready()
	if err != nil {
		return nil, err
	}
	return rt.streamer.Stream(ctx, query), nil
}

// Reset drops the conversation to the system message.
func (a *Agent) Reset(ctx context.Context) error {
	rt, err := a.ready()
	if err != nil {
		return err
	}
	rt.engine.Reset(ctx)

	a.authLock.Lock()
	a.authLoaded = false
	a.authLock.Unlock()
	return nil
}

// ConversationInfo returns the summary of the conversation.
func (a *Agent) ConversationInfo() (conversation.Info, error) {
	rt, err := a.ready()
	if err != nil {
		return conversation.Info{}, err
	}
	return rt.engine.Info(), nil
}

// History returns the copy of the conversation.
func (a *Agent) History() ([]llms.Message, error) {
	rt, err := a.ready()
	if err != nil {
		return nil, err
	}
	return rt.engine.History(), nil
}

// Health returns the status of the agent and the providers.
func (a *Agent) Health() Health {
	h := Health{
		Status:    StatusStarting,
		Model:     a.llm.GetName(),
		Providers: a.manager.States(),
	}
	switch a.state.Load() {
	case stateReady:
		h.Status = StatusHealthy
	case stateShutdown:
		h.Status = StatusShuttingDown
	}
	if rt := a.runtime.Load(); rt != nil {
		h.Tools = rt.registry.Len()
		h.Fingerprint = rt.registry.Fingerprint()
	}
	return h
}

// Tools returns the catalog offered to the model, sorted by name.
func (a *Agent) Tools() []tools.Description {
	rt := a.runtime.Load()
	if rt == nil {
		return []tools.Description{}
	}
	return tools.Describe(rt.registry.Tools()...)
}
