package memory

import (
	"context"
	"sync"

	"github.com/zhouzirui/chatdesk/backend/internal/storage"
)

// Store is an in-memory implementation of storage.Store
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{values: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) Close() error { return nil }
