package llms

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrUnexpectedRole is returned when a message role is of an unexpected type.
var ErrUnexpectedRole = errors.New("unexpected role")

// Role is the role of a conversation message.
type Role string

const (
	// RoleSystem is the system prompt, or a system note.
	RoleSystem Role = "system"
	// RoleUser is a message sent by the user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool result message.
	RoleTool Role = "tool"
)

// Valid returns true if the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry in the conversation history.
//
// Assistant messages that request tools carry ToolCalls and may have
// an empty Content, the empty string is preserved as is.
// Tool messages carry the ToolCallID they answer and the tool Name.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set on assistant messages only.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID is set on tool messages only.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Name is the tool name, set on tool messages only.
	Name string `json:"name,omitempty"`
}

// Validate checks the role specific fields of the message.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser:
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
			return errors.Newf("%s message must not have tool fields", m.Role)
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return errors.New("assistant message must not have tool_call_id")
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return errors.New("tool message must have tool_call_id")
		}
		if len(m.ToolCalls) > 0 {
			return errors.New("tool message must not have tool_calls")
		}
	default:
		return errors.Wrapf(ErrUnexpectedRole, "role %q", m.Role)
	}
	return nil
}

// FunctionCall is the name and arguments of a function call.
type FunctionCall struct {
	// The name of the function to call.
	Name string `json:"name"`
	// The arguments to pass to the function, as a JSON string.
	Arguments string `json:"arguments"`
}

// ToolCall is a call to a tool (as requested by the model) that should be executed.
type ToolCall struct {
	// ID is the unique identifier of the tool call.
	ID string `json:"id"`
	// Type is the type of the tool call. Typically, this would be "function".
	Type string `json:"type"`
	// FunctionCall is the function call to be executed.
	FunctionCall *FunctionCall `json:"function,omitempty"`
}

func (tc ToolCall) String() string {
	if tc.FunctionCall == nil {
		return fmt.Sprintf("ToolCall: %s", tc.ID)
	}
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
}

// ToolCallResponse is the response returned by a tool call.
type ToolCallResponse struct {
	// ToolCallID is the ID of the tool call this response is for.
	ToolCallID string `json:"tool_call_id"`
	// Name is the name of the tool that was called.
	Name string `json:"name"`
	// Content is the textual content of the response.
	Content string `json:"content"`
}

func (tc ToolCallResponse) String() string {
	return fmt.Sprintf("ToolCallResponse: %s (%s), response size: %d", tc.ToolCallID, tc.Name, len(tc.Content))
}

// ContentResponse is the response returned by a GenerateContent call.
// It can potentially return multiple content choices.
type ContentResponse struct {
	Choices []*ContentChoice
}

// ContentChoice is one of the response choices returned by GenerateContent
// calls.
type ContentChoice struct {
	// Content is the textual content of a response
	Content string `json:"content"`

	// StopReason is the reason the model stopped generating output.
	StopReason string `json:"stop_reason"`

	// GenerationInfo is arbitrary information the model adds to the response.
	GenerationInfo map[string]any `json:"generation_info"`

	// ToolCalls is a list of tool calls the model asks to invoke.
	ToolCalls []ToolCall `json:"tool_calls"`
}

// TextMessage creates a Message with a role and text content.
func TextMessage(role Role, content string) Message {
	return Message{
		Role:    role,
		Content: content,
	}
}

// MessageFromToolCalls creates an assistant Message requesting the tool calls.
// The content is kept as provided, including the empty string.
func MessageFromToolCalls(content string, toolCalls ...ToolCall) Message {
	result := Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: make([]ToolCall, 0, len(toolCalls)),
	}
	for _, toolCall := range toolCalls {
		tc := ToolCall{
			ID:   toolCall.ID,
			Type: toolCall.Type,
		}
		if toolCall.FunctionCall != nil {
			tc.FunctionCall = &FunctionCall{
				Name:      toolCall.FunctionCall.Name,
				Arguments: toolCall.FunctionCall.Arguments,
			}
		}
		result.ToolCalls = append(result.ToolCalls, tc)
	}
	return result
}

// MessageFromToolResponse creates a tool Message for the tool response.
func MessageFromToolResponse(toolResponse ToolCallResponse) Message {
	return Message{
		Role:       RoleTool,
		Content:    toolResponse.Content,
		ToolCallID: toolResponse.ToolCallID,
		Name:       toolResponse.Name,
	}
}

// CloneMessages returns a deep copy of the messages.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	res := make([]Message, len(msgs))
	for i, m := range msgs {
		res[i] = m
		if m.ToolCalls != nil {
			res[i] = MessageFromToolCalls(m.Content, m.ToolCalls...)
		}
	}
	return res
}
