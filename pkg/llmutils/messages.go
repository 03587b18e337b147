package llmutils

import (
	"fmt"
	"io"
	"strings"

	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/x/values"
)

// PrintMessages writes one line per message, for debugging and verbose output.
func PrintMessages(w io.Writer, msgs []llms.Message) {
	for _, m := range msgs {
		role := strings.ToUpper(string(m.Role))
		switch {
		case len(m.ToolCalls) > 0:
			calls := make([]string, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = tc.String()
			}
			fmt.Fprintf(w, "%s: %s\n", role, strings.Join(calls, "; "))
		case m.Role == llms.RoleTool:
			fmt.Fprintf(w, "%s: %s [%s]: %s\n", role, m.Name, m.ToolCallID, m.Content)
		default:
			fmt.Fprintf(w, "%s: %s\n", role, m.Content)
		}
	}
}

func toolCallSize(tcs []llms.ToolCall) uint64 {
	var size int
	for _, tc := range tcs {
		size += len(tc.ID) + len(tc.Type)
		if tc.FunctionCall != nil {
			size += len(tc.FunctionCall.Name) + len(tc.FunctionCall.Arguments)
		}
	}
	return uint64(size)
}

// CountMessagesContentSize returns the bytes sent to the model.
func CountMessagesContentSize(msgs []llms.Message) uint64 {
	var size uint64
	for _, m := range msgs {
		size += uint64(len(m.Role) + len(m.Content) + len(m.ToolCallID) + len(m.Name))
		size += toolCallSize(m.ToolCalls)
	}
	return size
}

// CountResponseContentSize returns the bytes received from the model.
func CountResponseContentSize(resp *llms.ContentResponse) uint64 {
	var size uint64
	for _, choice := range resp.Choices {
		size += uint64(len(choice.Content)) + toolCallSize(choice.ToolCalls)
	}
	return size
}

// CountTokens sums the token usage reported in the GenerationInfo of the choices.
func CountTokens(resp *llms.ContentResponse) (in, out, total int64) {
	for _, choice := range resp.Choices {
		info := values.MapAny(choice.GenerationInfo)
		in += info.Int64("InputTokens")
		out += info.Int64("OutputTokens")
		total += info.Int64("TotalTokens")
	}
	return
}

// FindLastUserQuestion returns the content of the last user message.
func FindLastUserQuestion(messages []llms.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llms.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// CountRoles returns the number of messages with the role.
func CountRoles(messages []llms.Message, role llms.Role) int {
	var count int
	for _, m := range messages {
		if m.Role == role {
			count++
		}
	}
	return count
}
