package store

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// Keys of the Redis store:
//
//	<prefix>:chat:<chatID>  list of JSON messages
//	<prefix>:chats          set of chat IDs
type redisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures the Redis store.
type RedisOption func(*redisStore)

// WithTTL expires the history of a chat after ttl without appends.
// The chats set is not expired, ListChats skips the expired chats.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *redisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore returns MessageStore backed by Redis,
// the keys are prefixed with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) MessageStore {
	s := &redisStore{
		client: client,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *redisStore) chatKey(chatID string) string {
	return s.prefix + ":chat:" + chatID
}

func (s *redisStore) chatsKey() string {
	return s.prefix + ":chats"
}

func (s *redisStore) Messages(ctx context.Context, chatID string) ([]llms.Message, error) {
	items, err := s.client.LRange(ctx, s.chatKey(chatID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(err, "failed to load chat %s", chatID)
	}

	messages := make([]llms.Message, 0, len(items))
	for i, item := range items {
		var msg llms.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// a corrupted entry must not block the conversation
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "decode_message",
				"chat_id", chatID,
				"index", i,
				"err", err.Error())
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *redisStore) Add(ctx context.Context, chatID string, msgs ...llms.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	items := make([]any, len(msgs))
	for i, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "failed to encode message")
		}
		items[i] = data
	}

	key := s.chatKey(chatID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, items...)
		pipe.SAdd(ctx, s.chatsKey(), chatID)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to append to chat %s", chatID)
	}
	return nil
}

func (s *redisStore) Reset(ctx context.Context, chatID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.chatKey(chatID))
		pipe.SRem(ctx, s.chatsKey(), chatID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to reset chat %s", chatID)
	}
	return nil
}

func (s *redisStore) ListChats(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.chatsKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "failed to list chats")
	}
	if s.ttl > 0 {
		ids = slices.DeleteFunc(ids, func(id string) bool {
			n, err := s.client.Exists(ctx, s.chatKey(id)).Result()
			return err == nil && n == 0
		})
	}
	slices.Sort(ids)
	return ids, nil
}
