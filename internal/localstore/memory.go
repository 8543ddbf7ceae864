package localstore

import (
	"context"
	"sync"

	"cart-sync/internal/model"
)

// MemoryStore keeps encoded records in process memory.
// It does not survive a restart; used in tests and with STORE_BACKEND=memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	writes  int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Read(ctx context.Context, key string) ([]model.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decodeItems(s.records[key]), nil
}

func (s *MemoryStore) Write(ctx context.Context, key string, items []model.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if len(items) == 0 {
		delete(s.records, key)
		return nil
	}
	data, err := encodeItems(items)
	if err != nil {
		return err
	}
	s.records[key] = data
	return nil
}

// Seed stores raw bytes under key, bypassing encoding.
func (s *MemoryStore) Seed(key string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = append([]byte(nil), raw...)
}

// Raw returns the stored bytes and whether a record exists.
func (s *MemoryStore) Raw(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.records[key]
	return data, ok
}

// Writes counts Write calls.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

var _ Store = (*MemoryStore)(nil)
