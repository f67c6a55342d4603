package persist

import (
	"context"
	"sync"
)

// MemoryStore keeps partitions in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, partition string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[partition]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Save(_ context.Context, partition string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[partition] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
