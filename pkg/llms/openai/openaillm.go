package openai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/xlog"
	goopenai "github.com/sashabaranov/go-openai"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "openai")

var (
	// ErrEmptyResponse is returned when the OpenAI API returns an empty response.
	ErrEmptyResponse = errors.New("no response")
	// ErrMissingToken is returned when the OpenAI API key is not set.
	ErrMissingToken = errors.New("missing the OpenAI API key, set it in the OPENAI_API_KEY environment variable")
)

// LLM is the model consumer over OpenAI chat completions.
type LLM struct {
	client       *goopenai.Client
	model        string
	providerType llms.ProviderType
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := newOptions(opts...)
	if o.token == "" {
		return nil, errors.WithStack(ErrMissingToken)
	}

	cfg := goopenai.DefaultConfig(o.token)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.organization != "" {
		cfg.OrgID = o.organization
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}

	return &LLM{
		client:       goopenai.NewClientWithConfig(cfg),
		model:        o.model,
		providerType: o.providerType,
	}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return o.providerType
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	req, err := o.chatRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	result, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "openai: chat completion failed")
	}
	if len(result.Choices) == 0 {
		return nil, errors.WithStack(ErrEmptyResponse)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", req.Model,
		"id", result.ID,
		"choices", len(result.Choices),
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
	)

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"InputTokens":  int64(result.Usage.PromptTokens),
				"OutputTokens": int64(result.Usage.CompletionTokens),
				"TotalTokens":  int64(result.Usage.TotalTokens),
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func (o *LLM) chatRequest(messages []llms.Message, opts *llms.CallOptions) (goopenai.ChatCompletionRequest, error) {
	req := goopenai.ChatCompletionRequest{
		Model:               o.model,
		Temperature:         float32(opts.Temperature),
		MaxCompletionTokens: opts.MaxTokens,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}

	req.Messages = make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg, err := chatMessage(m)
		if err != nil {
			return req, err
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return req, errors.Wrap(err, "failed to convert llms tool to openai tool")
		}
		req.Tools = append(req.Tools, t)
	}
	if len(req.Tools) > 0 {
		if opts.ToolChoice != nil {
			req.ToolChoice = opts.ToolChoice
		}
		if opts.ParallelToolCalls != nil {
			req.ParallelToolCalls = *opts.ParallelToolCalls
		}
	}
	return req, nil
}

func chatMessage(m llms.Message) (goopenai.ChatCompletionMessage, error) {
	msg := goopenai.ChatCompletionMessage{
		Content: m.Content,
	}
	switch m.Role {
	case llms.RoleSystem:
		msg.Role = goopenai.ChatMessageRoleSystem
	case llms.RoleUser:
		msg.Role = goopenai.ChatMessageRoleUser
	case llms.RoleAssistant:
		msg.Role = goopenai.ChatMessageRoleAssistant
		msg.ToolCalls = toolCallsFromToolCalls(m.ToolCalls)
	case llms.RoleTool:
		msg.Role = goopenai.ChatMessageRoleTool
		msg.ToolCallID = m.ToolCallID
		msg.Name = m.Name
	default:
		return msg, errors.Wrapf(llms.ErrUnexpectedRole, "role %q not supported", m.Role)
	}
	return msg, nil
}

// toolFromTool converts an llms.Tool to a Tool.
func toolFromTool(t llms.Tool) (goopenai.Tool, error) {
	switch t.Type {
	case string(goopenai.ToolTypeFunction):
		if t.Function == nil {
			return goopenai.Tool{}, errors.New("function definition is missing")
		}
		return goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		}, nil
	default:
		return goopenai.Tool{}, errors.Errorf("tool type %v not supported", t.Type)
	}
}

// toolCallsFromToolCalls converts a slice of llms.ToolCall to a slice of ToolCall.
func toolCallsFromToolCalls(tcs []llms.ToolCall) []goopenai.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	toolCalls := make([]goopenai.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		call := goopenai.ToolCall{
			ID:   tc.ID,
			Type: goopenai.ToolType(tc.Type),
		}
		if tc.FunctionCall != nil {
			call.Function = goopenai.FunctionCall{
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			}
		}
		toolCalls = append(toolCalls, call)
	}
	return toolCalls
}
