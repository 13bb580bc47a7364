// Package memory is a process-local session.Store backend, used by the CLI
// and by tests that don't need durability across process restarts.
// Grounded on the prior codebase's runtime/agent/session/inmem store — a mutex-
// guarded map keyed by session ID.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streetrace-ai/streetrace/runtime/llm"
	"github.com/streetrace-ai/streetrace/runtime/session"
)

// Store is an in-memory session.Store. The zero value is not usable; call
// New.
type Store struct {
	mu sync.Mutex
	sessions map[string]*session.Session
}

// New constructs an empty Store.
func New() *Store {
	return &Store{sessions: map[string]*session.Session{}}
}

func (s *Store) Create(ctx context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if existing, ok := s.sessions[sessionID]; ok {
		return *existing, nil
	}
	sess := &session.Session{ID: sessionID, Status: session.StatusActive, CreatedAt: createdAt}
	s.sessions[sessionID] = sess
	return *sess, nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *Store) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrSessionNotFound
	}
	if sess.Status == session.StatusEnded {
		return session.ErrSessionEnded
	}
	sess.History = append(sess.History, messages...)
	return nil
}

func (s *Store) Replace(ctx context.Context, sessionID string, messages []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.History = append([]llm.Message(nil), messages...)
	return nil
}

func (s *Store) End(ctx context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if sess.Status != session.StatusEnded {
		sess.Status = session.StatusEnded
		t := endedAt
		sess.EndedAt = &t
	}
	return cloneSession(sess), nil
}

func cloneSession(s *session.Session) session.Session {
	cp := *s
	cp.History = append([]llm.Message(nil), s.History...)
	return cp
}
