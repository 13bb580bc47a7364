// Package redis is a github.com/redis/go-redis/v9-backed session.Store.
// Redis is wired instead of a document store because the core's Store
// contract is a simple keyed get/append, which a Redis hash (session
// metadata) plus a list (message history) maps onto far more directly than
// standing up a document schema the way the prior codebase's features/session/mongo
// package does for its richer Session/RunMeta model.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streetrace-ai/streetrace/runtime/llm"
	"github.com/streetrace-ai/streetrace/runtime/session"
)

// Store is a session.Store backed by a Redis client. Each session occupies
// two keys: "<prefix>:<id>:meta" (a hash of status/created_at/ended_at) and
// "<prefix>:<id>:history" (a list of JSON-encoded llm.Message entries).
type Store struct {
	rdb *redis.Client
	prefix string
}

// New constructs a Store. prefix namespaces keys in a shared Redis instance;
// an empty prefix defaults to "streetrace:session".
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "streetrace:session"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) metaKey(id string) string { return fmt.Sprintf("%s:%s:meta", s.prefix, id) }
func (s *Store) historyKey(id string) string { return fmt.Sprintf("%s:%s:history", s.prefix, id) }

func (s *Store) Create(ctx context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	exists, err := s.rdb.Exists(ctx, s.metaKey(sessionID)).Result()
	if err != nil {
		return session.Session{}, fmt.Errorf("redis: create: %w", err)
	}
	if exists > 0 {
		return s.Load(ctx, sessionID)
	}
	err = s.rdb.HSet(ctx, s.metaKey(sessionID), map[string]any{
		"status": string(session.StatusActive),
		"created_at": createdAt.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return session.Session{}, fmt.Errorf("redis: create: %w", err)
	}
	return session.Session{ID: sessionID, Status: session.StatusActive, CreatedAt: createdAt}, nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (session.Session, error) {
	meta, err := s.rdb.HGetAll(ctx, s.metaKey(sessionID)).Result()
	if err != nil {
		return session.Session{}, fmt.Errorf("redis: load: %w", err)
	}
	if len(meta) == 0 {
		return session.Session{}, session.ErrSessionNotFound
	}
	sess := session.Session{ID: sessionID, Status: session.Status(meta["status"])}
	if createdAt, ok := meta["created_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			sess.CreatedAt = t
		}
	}
	if endedAt, ok := meta["ended_at"]; ok && endedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, endedAt); err == nil {
			sess.EndedAt = &t
		}
	}
	raw, err := s.rdb.LRange(ctx, s.historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return session.Session{}, fmt.Errorf("redis: load history: %w", err)
	}
	sess.History = make([]llm.Message, 0, len(raw))
	for _, r := range raw {
		var m llm.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return session.Session{}, fmt.Errorf("redis: decode history entry: %w", err)
		}
		sess.History = append(sess.History, m)
	}
	return sess, nil
}

func (s *Store) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	status, err := s.rdb.HGet(ctx, s.metaKey(sessionID), "status").Result()
	if err == redis.Nil {
		return session.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("redis: append: %w", err)
	}
	if session.Status(status) == session.StatusEnded {
		return session.ErrSessionEnded
	}
	encoded := make([]any, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redis: encode message: %w", err)
		}
		encoded = append(encoded, b)
	}
	if len(encoded) == 0 {
		return nil
	}
	if err := s.rdb.RPush(ctx, s.historyKey(sessionID), encoded...).Err(); err != nil {
		return fmt.Errorf("redis: append: %w", err)
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, sessionID string, messages []llm.Message) error {
	exists, err := s.rdb.Exists(ctx, s.metaKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis: replace: %w", err)
	}
	if exists == 0 {
		return session.ErrSessionNotFound
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.historyKey(sessionID))
	if len(messages) > 0 {
		encoded := make([]any, 0, len(messages))
		for _, m := range messages {
			b, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("redis: encode message: %w", err)
			}
			encoded = append(encoded, b)
		}
		pipe.RPush(ctx, s.historyKey(sessionID), encoded...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: replace: %w", err)
	}
	return nil
}

func (s *Store) End(ctx context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	exists, err := s.rdb.Exists(ctx, s.metaKey(sessionID)).Result()
	if err != nil {
		return session.Session{}, fmt.Errorf("redis: end: %w", err)
	}
	if exists == 0 {
		return session.Session{}, session.ErrSessionNotFound
	}
	err = s.rdb.HSet(ctx, s.metaKey(sessionID), map[string]any{
		"status": string(session.StatusEnded),
		"ended_at": endedAt.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return session.Session{}, fmt.Errorf("redis: end: %w", err)
	}
	return s.Load(ctx, sessionID)
}
