package chatmodel

import (
	"context"
	"strconv"
	"time"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// Run identifies one query of the conversation.
type Run struct {
	chatID  string
	id      string
	started time.Time
}

// ChatID returns the ID of the conversation
func (r *Run) ChatID() string {
	return r.chatID
}

// ID is unique per query
func (r *Run) ID() string {
	return r.id
}

// Started returns the start time of the run
func (r *Run) Started() time.Time {
	return r.started
}

type runKey struct{}

// StartRun returns the context carrying a new Run of the chat.
// Empty chatID is inherited from the parent run, or generated.
func StartRun(ctx context.Context, chatID string) (context.Context, *Run) {
	parentChat := ""
	if parent := RunFromContext(ctx); parent != nil {
		parentChat = parent.chatID
	}
	r := &Run{
		chatID:  values.StringsCoalesce(chatID, parentChat, NewChatID()),
		id:      NewChatID(),
		started: time.Now(),
	}
	return context.WithValue(ctx, runKey{}, r), r
}

// RunFromContext returns the Run of the context, or nil.
func RunFromContext(ctx context.Context) *Run {
	r, _ := ctx.Value(runKey{}).(*Run)
	return r
}

// GetChatID returns the chat ID of the context, or empty string.
func GetChatID(ctx context.Context) string {
	if r := RunFromContext(ctx); r != nil {
		return r.chatID
	}
	return ""
}

// NewChatID generates a new flake ID.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
