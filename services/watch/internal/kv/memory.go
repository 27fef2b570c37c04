package kv

import (
	"context"
	"sync"
)

// MemoryStorage is an in-memory Storage. A positive quota bounds the total
// size of keys plus values in bytes, like the browser's per-origin quota.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
	size  int
	quota int
}

func NewMemoryStorage(quotaBytes int) *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string), quota: quotaBytes}
}

func (s *MemoryStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.size + len(key) + len(value)
	if old, ok := s.items[key]; ok {
		next -= len(key) + len(old)
	}
	if s.quota > 0 && next > s.quota {
		return ErrQuotaExceeded
	}
	s.items[key] = value
	s.size = next
	return nil
}

func (s *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.items[key]; ok {
		s.size -= len(key) + len(old)
		delete(s.items, key)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
