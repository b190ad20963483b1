package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HistoryWindow is the number of messages kept per chat session. Older turns
// are trimmed away so prompts stay small and sessions cannot grow without
// bound.
const HistoryWindow = 8

// SessionMemory stores per-session chat history.
type SessionMemory interface {
	History(ctx context.Context, sessionID string) ([]Message, error)
	Append(ctx context.Context, sessionID string, msgs ...Message) error
}

// redisMemory keeps each session as a Redis list, trimmed to the window and
// expired after the TTL so abandoned sessions clean themselves up.
type redisMemory struct {
	client *redis.Client
	window int
	ttl    time.Duration
}

func NewRedisMemory(client *redis.Client, ttl time.Duration) SessionMemory {
	return &redisMemory{client: client, window: HistoryWindow, ttl: ttl}
}

func (m *redisMemory) key(sessionID string) string {
	return "chat:session:" + sessionID
}

func (m *redisMemory) History(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := m.client.LRange(ctx, m.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// A corrupt entry should not poison the whole session.
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (m *redisMemory) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	key := m.key(sessionID)

	pipe := m.client.TxPipeline()
	for _, msg := range msgs {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode session message: %w", err)
		}
		pipe.RPush(ctx, key, encoded)
	}
	pipe.LTrim(ctx, key, int64(-m.window), -1)
	pipe.Expire(ctx, key, m.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session history: %w", err)
	}
	return nil
}
