package llms

// CallOption configures a single model call.
type CallOption func(*CallOptions)

// CallOptions are the per-call settings passed to the model consumer.
type CallOptions struct {
	// Model overrides the model of the consumer.
	Model string
	// MaxTokens caps the generated tokens, zero means the backend default.
	MaxTokens   int
	Temperature float64

	// Tools is the catalog offered to the model.
	Tools []Tool
	// ToolChoice is "none" or "auto", sent only with a non-empty catalog.
	ToolChoice any
	// ParallelToolCalls allows the model to request several tools in one turn,
	// nil leaves the backend default.
	ParallelToolCalls *bool
}

// Tool is a catalog entry offered to the model.
type Tool struct {
	Type     string              `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition describes a callable tool.
// Parameters is the JSON schema object of the arguments.
type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// FunctionCallBehavior is the tool choice of the call.
type FunctionCallBehavior string

const (
	// FunctionCallBehaviorNone forbids tool calls.
	FunctionCallBehaviorNone FunctionCallBehavior = "none"
	// FunctionCallBehaviorAuto lets the model decide.
	FunctionCallBehaviorAuto FunctionCallBehavior = "auto"
)

// WithModel overrides the model name.
func WithModel(model string) CallOption {
	return func(o *CallOptions) {
		o.Model = model
	}
}

// WithMaxTokens caps the generated tokens.
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = temperature
	}
}

// WithToolChoice sets the tool choice, see FunctionCallBehavior.
func WithToolChoice(choice any) CallOption {
	return func(o *CallOptions) {
		o.ToolChoice = choice
	}
}

// WithTools sets the catalog offered to the model.
func WithTools(tools []Tool) CallOption {
	return func(o *CallOptions) {
		o.Tools = tools
	}
}

// WithParallelToolCalls allows or denies several tool calls per turn.
func WithParallelToolCalls(enabled bool) CallOption {
	return func(o *CallOptions) {
		o.ParallelToolCalls = &enabled
	}
}

// NewCallOptions applies the options in order, nil options are skipped.
func NewCallOptions(options ...CallOption) *CallOptions {
	opts := &CallOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
