// Package memory defines the optional persistent-memory collaborator. The
// orchestration core hands every user/assistant text exchange to a Store and
// may ask it for the active session identifier; the core functions identically
// with the no-op implementation.
package memory

import (
	"context"
	"time"
)

// Exchange is one stored user or assistant message.
type Exchange struct {
	Role      string         `json:"role"` // "user" or "assistant"
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Store persists conversational exchanges scoped by session. Implementations
// must be safe for concurrent use.
type Store interface {
	// ActiveSession returns the identifier of the current session, creating
	// one if none exists.
	ActiveSession(ctx context.Context) (string, error)

	// AppendExchange stores one exchange under the session.
	AppendExchange(ctx context.Context, sessionID string, ex Exchange) error

	// History returns the most recent exchanges for the session, oldest
	// first, up to limit (<= 0 means all).
	History(ctx context.Context, sessionID string, limit int) ([]Exchange, error)
}

// NoopStore satisfies Store while persisting nothing. It is the default
// collaborator when no memory backend is configured.
type NoopStore struct{}

// ActiveSession returns an empty session identifier.
func (NoopStore) ActiveSession(context.Context) (string, error) { return "", nil }

// AppendExchange discards the exchange.
func (NoopStore) AppendExchange(context.Context, string, Exchange) error { return nil }

// History returns no exchanges.
func (NoopStore) History(context.Context, string, int) ([]Exchange, error) {
	return []Exchange{}, nil
}
