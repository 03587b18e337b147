package store

import (
	"context"

	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "store")

// MessageStore persists the conversation history by chat ID.
type MessageStore interface {
	// Messages returns the history in order
	Messages(ctx context.Context, chatID string) ([]llms.Message, error)
	// Add appends the messages, all or none
	Add(ctx context.Context, chatID string, msgs ...llms.Message) error
	// Reset removes the history
	Reset(ctx context.Context, chatID string) error
	// ListChats returns the chat IDs with history
	ListChats(ctx context.Context) ([]string, error)
}
