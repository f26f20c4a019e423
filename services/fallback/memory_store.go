package fallback

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store, safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemoryStore creates a MemoryStore seeded with snapshots.
func NewMemoryStore(snapshots map[string][]byte) *MemoryStore {
	s := &MemoryStore{snapshots: make(map[string][]byte, len(snapshots))}
	for key, data := range snapshots {
		s.snapshots[key] = append([]byte(nil), data...)
	}
	return s
}

// Load returns a copy of the snapshot for key.
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.snapshots[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Save stores a copy of data under key.
func (s *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[key] = append([]byte(nil), data...)
	return nil
}
