package chatmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Nil(t, RunFromContext(ctx))
	assert.Empty(t, GetChatID(ctx))

	ctx1, r1 := StartRun(ctx, "chat1")
	require.NotNil(t, r1)
	assert.Equal(t, "chat1", r1.ChatID())
	assert.NotEmpty(t, r1.ID())
	assert.False(t, r1.Started().IsZero())
	assert.Same(t, r1, RunFromContext(ctx1))
	assert.Equal(t, "chat1", GetChatID(ctx1))

	// nested run inherits the chat
	ctx2, r2 := StartRun(ctx1, "")
	assert.Equal(t, "chat1", r2.ChatID())
	assert.NotEqual(t, r1.ID(), r2.ID())
	assert.Same(t, r2, RunFromContext(ctx2))
	assert.Same(t, r1, RunFromContext(ctx1))
}

func TestStartRun_NewChat(t *testing.T) {
	t.Parallel()
	_, r1 := StartRun(context.Background(), "")
	_, r2 := StartRun(context.Background(), "")
	assert.NotEmpty(t, r1.ChatID())
	assert.NotEqual(t, r1.ChatID(), r2.ChatID())
	assert.NotEqual(t, NewChatID(), NewChatID())
}
