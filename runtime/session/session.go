// Package session defines the narrow SessionStore contract the runtime
// consumes for conversation history persistence, grounded on
// the prior codebase's runtime/agent/session.Store: explicit session lifecycle,
// durable failures surfaced to the caller rather than swallowed. The
// contract here is deliberately smaller than the prior codebase's — a session is
// just a keyed, appendable list of llm.Message entries — because the
// DSL's history model never needs run metadata, labels,
// or cross-session listing.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/streetrace-ai/streetrace/runtime/llm"
)

// ErrSessionNotFound is returned by Load when no session exists for the
// given ID.
var ErrSessionNotFound = errors.New("session: not found")

// ErrSessionEnded is returned by Append when the session has already been
// ended; ended sessions are terminal.
var ErrSessionEnded = errors.New("session: ended")

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded Status = "ended"
)

// Session is the durable record a Store tracks per session ID.
type Session struct {
	ID string
	Status Status
	CreatedAt time.Time
	EndedAt *time.Time
	History []llm.Message
}

// Store persists conversation history keyed by session ID. Implementations
// must be durable: failures are surfaced to callers so a flow can fail fast
// rather than silently losing history.
type Store interface {
	// Create creates (or idempotently returns) an active session.
	Create(ctx context.Context, sessionID string, createdAt time.Time) (Session, error)
	// Load returns the full history for sessionID.
	Load(ctx context.Context, sessionID string) (Session, error)
	// Append adds messages to sessionID's history. Returns ErrSessionEnded
	// if the session has already been ended.
	Append(ctx context.Context, sessionID string, messages ...llm.Message) error
	// Replace overwrites sessionID's entire history, used by history
	// compaction to install a summarized transcript.
	Replace(ctx context.Context, sessionID string, messages []llm.Message) error
	// End marks a session terminal; subsequent Append calls fail.
	End(ctx context.Context, sessionID string, endedAt time.Time) (Session, error)
}
