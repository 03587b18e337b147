package conversation

import (
	"github.com/effective-security/mcpagent/store"
)

// DefaultMaxIterations is the default limit of model calls per query.
const DefaultMaxIterations = 20

// DefaultName is the name of the engine in logs and metrics.
const DefaultName = "agent"

// Option is a function that can be used to modify the Config.
type Option func(*Config)

// Config of the Engine.
type Config struct {
	// Name is used in logs and metrics
	Name string
	// MaxIterations is the limit of model calls per query
	MaxIterations int
	// Model overrides the model name of the consumer
	Model string
	// Temperature is the sampling temperature, ignored when zero
	Temperature float64
	// MaxTokens is the limit of generated tokens, ignored when zero
	MaxTokens int
	// ParallelToolCalls enables concurrent dispatch of the tool calls
	ParallelToolCalls bool
	// ChatID identifies the history in the Store
	ChatID string

	Callback Callback
	Store    store.MessageStore
}

// NewConfig returns the Config with defaults and the options applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:              DefaultName,
		MaxIterations:     DefaultMaxIterations,
		ParallelToolCalls: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	return cfg
}

// WithName sets the name of the engine.
func WithName(name string) Option {
	return func(o *Config) {
		if name != "" {
			o.Name = name
		}
	}
}

// WithMaxIterations sets the limit of model calls per query.
func WithMaxIterations(n int) Option {
	return func(o *Config) {
		o.MaxIterations = n
	}
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
	}
}

// WithMaxTokens sets the limit of generated tokens.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
	}
}

// WithParallelToolCalls enables or disables concurrent tool dispatch.
func WithParallelToolCalls(enabled bool) Option {
	return func(o *Config) {
		o.ParallelToolCalls = enabled
	}
}

// WithCallback sets the callback.
func WithCallback(callback Callback) Option {
	return func(o *Config) {
		o.Callback = callback
	}
}

// WithStore sets the store for the history.
func WithStore(st store.MessageStore) Option {
	return func(o *Config) {
		o.Store = st
	}
}

// WithChatID sets the chat ID of the history in the store.
func WithChatID(chatID string) Option {
	return func(o *Config) {
		o.ChatID = chatID
	}
}
