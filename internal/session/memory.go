package session

import (
	"context"
	"sync"
	"time"
)

// now is overridable for tests.
var now = time.Now

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore keeps flow state in a process-local map. State is lost on
// restart, which is acceptable for short conversational flows. Entries
// carry the same TTL as the Redis backend and expire on access.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]memoryEntry
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]memoryEntry)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.states[userID]
	if !ok {
		return State{}, false, nil
	}
	if now().After(entry.expiresAt) {
		delete(m.states, userID)
		return State{}, false, nil
	}
	return entry.state, true, nil
}

func (m *MemoryStore) Set(_ context.Context, userID int64, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[userID] = memoryEntry{
		state:     state,
		expiresAt: now().Add(sessionTTL),
	}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, userID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
