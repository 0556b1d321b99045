package memory

import (
	"context"
	"sync"

	"github.com/CuriosityQuantified/atlas/internal/util"
)

// InMemoryStore is a process-local Store. Suitable for tests and demos; swap
// for the redis implementation when exchanges must survive the process.
//
// Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu        sync.RWMutex
	sessionID string
	exchanges map[string][]Exchange // sessionID -> ordered exchanges
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{exchanges: make(map[string][]Exchange)}
}

// ActiveSession returns the store's session identifier, creating one on
// first use.
func (m *InMemoryStore) ActiveSession(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionID == "" {
		m.sessionID = util.NewID()
	}
	return m.sessionID, nil
}

// AppendExchange stores one exchange under the session.
func (m *InMemoryStore) AppendExchange(_ context.Context, sessionID string, ex Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges[sessionID] = append(m.exchanges[sessionID], ex)
	return nil
}

// History returns a copy of the most recent exchanges, oldest first.
func (m *InMemoryStore) History(_ context.Context, sessionID string, limit int) ([]Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.exchanges[sessionID]
	start := 0
	if limit > 0 && len(stored) > limit {
		start = len(stored) - limit
	}

	out := make([]Exchange, len(stored)-start)
	copy(out, stored[start:])
	return out, nil
}
