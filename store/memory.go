package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/effective-security/mcpagent/pkg/llms"
)

type memoryStore struct {
	lock  sync.RWMutex
	chats map[string][]llms.Message
}

// NewMemoryStore returns MessageStore that keeps the history in memory,
// the messages are copied on the way in and out.
func NewMemoryStore() MessageStore {
	return &memoryStore{
		chats: make(map[string][]llms.Message),
	}
}

func (s *memoryStore) Messages(_ context.Context, chatID string) ([]llms.Message, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return llms.CloneMessages(s.chats[chatID]), nil
}

func (s *memoryStore) Add(_ context.Context, chatID string, msgs ...llms.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.chats[chatID] = append(s.chats[chatID], llms.CloneMessages(msgs)...)
	return nil
}

func (s *memoryStore) Reset(_ context.Context, chatID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.chats, chatID)
	return nil
}

func (s *memoryStore) ListChats(_ context.Context) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return slices.Sorted(maps.Keys(s.chats)), nil
}
