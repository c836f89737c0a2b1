package piicache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idvault/internal/sentinel"
	id "idvault/pkg/domain"
)

type memoryEntry struct {
	blob      []byte
	expiresAt time.Time
}

// InMemoryStore is a TTL-aware cache store for tests and development.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[id.SessionID]memoryEntry
	now     func() time.Time
}

// NewMemory constructs an empty in-memory cache store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[id.SessionID]memoryEntry),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Put(_ context.Context, sessionID id.SessionID, blob []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.entries[sessionID] = memoryEntry{blob: cp, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID id.SessionID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, fmt.Errorf("no cache entry for session: %w", sentinel.ErrNotFound)
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, sessionID)
		return nil, fmt.Errorf("cache entry expired: %w", sentinel.ErrNotFound)
	}
	cp := make([]byte, len(entry.blob))
	copy(cp, entry.blob)
	return cp, nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
