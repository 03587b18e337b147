package llms

import (
	"context"
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llms_mock.gen.go  -package mockllms

// ProviderType is the OpenAI compatible backend of the model.
type ProviderType string

const (
	// ProviderOpenAI is api.openai.com or a compatible gateway.
	ProviderOpenAI ProviderType = "OPENAI"
	// ProviderPerplexity is api.perplexity.ai, it has no tool calling.
	ProviderPerplexity ProviderType = "PERPLEXITY"
)

// Model is the model consumer used by the conversation engine.
type Model interface {
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GetName returns the model name, used in logs and metrics.
	GetName() string
	// GenerateContent asks the model to produce the next assistant turn
	// for the given history. The turn is either a final text answer,
	// or a list of tool calls.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Capability is a feature of the backend.
type Capability uint8

const (
	// CapabilityFunctionCalling accepts a tool catalog
	CapabilityFunctionCalling Capability = 1 << iota
	// CapabilityMultiToolCalling accepts the parallel_tool_calls flag
	CapabilityMultiToolCalling
)

// Supports returns true when the backend has the capability.
func (p ProviderType) Supports(c Capability) bool {
	switch p {
	case ProviderOpenAI:
		return c&(CapabilityFunctionCalling|CapabilityMultiToolCalling) == c
	default:
		return false
	}
}
