package content

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps payloads in process memory. It is the default store
// when no bucket is configured and the store used by tests. Payloads do
// not survive a restart, which the pipeline tolerates: a lost payload
// just means the next run refetches.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	storedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[path] = memoryObject{data: copied, storedAt: time.Now()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[path]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make([]byte, len(obj.data))
	copy(copied, obj.data)
	return copied, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for path, obj := range s.objects {
		if obj.storedAt.Before(cutoff) {
			delete(s.objects, path)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored payloads.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
