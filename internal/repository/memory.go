package repository

import (
	"context"
	"sync"
	"time"

	"jobboard-agent/internal/domain"
)

// MemoryStore is a process-local session store for tests and local runs.
// Entries never expire.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]domain.Session{}, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, conversationID string) (domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[conversationID]
	if !ok {
		return domain.Session{}, false, nil
	}
	return s.Clone(), true, nil
}

func (m *MemoryStore) Put(_ context.Context, s domain.Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ConversationID]
	if !ok && expectedVersion != 0 {
		return ErrVersionConflict
	}
	if ok && (cur.State == domain.StateTerminated || cur.Version != expectedVersion) {
		return ErrVersionConflict
	}
	m.sessions[s.ConversationID] = s.Clone()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[conversationID] = domain.Tombstone(conversationID, m.now())
	return nil
}
