package tools

import (
	"context"
	"sort"
)

//go:generate mockgen -source=tools.go -destination=../mocks/mocktools/tools_mock.gen.go  -package mocktools

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool, as seen by the model.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() any

	// Call executes the tool with the given JSON arguments and returns the JSON result.
	// If the arguments do not match the input schema,
	// it should return an error that satisfies errors.Is(err, schema.ErrInvalidArguments).
	Call(context.Context, string) (string, error)
}

// Callback is notified on tool execution.
type Callback interface {
	OnToolStart(context.Context, ITool, string)
	OnToolEnd(context.Context, ITool, string, string)
	OnToolError(context.Context, ITool, string, error)
	OnToolNotFound(context.Context, string)
}

// Description of the tool, as printed by the tools command.
type Description struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Parameters  any    `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Describe returns the descriptions sorted by name.
func Describe(list ...ITool) []Description {
	res := make([]Description, 0, len(list))
	for _, tool := range list {
		res = append(res, Description{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})
	return res
}
