package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zhouzirui/chatdesk/backend/internal/storage"
)

// StorageKey is the fixed key the configuration is persisted under.
const StorageKey = "chatbot_config"

// Store exposes the current configuration to handlers and services.
type Store interface {
	Load(ctx context.Context) (Configuration, error)
	Save(ctx context.Context, cfg Configuration) error
}

// PersistentStore keeps the configuration as JSON in a key/value backend and caches the last
// value in memory.
type PersistentStore struct {
	mu      sync.RWMutex
	kv      storage.Store
	seed    Configuration
	current *Configuration
}

// NewPersistentStore returns a store backed by kv. seed is used until a value is saved.
func NewPersistentStore(kv storage.Store, seed Configuration) *PersistentStore {
	return &PersistentStore{kv: kv, seed: seed}
}

// Load returns a snapshot of the configuration.
func (s *PersistentStore) Load(ctx context.Context) (Configuration, error) {
	s.mu.RLock()
	if s.current != nil {
		cfg := *s.current
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return *s.current, nil
	}

	raw, err := s.kv.Get(ctx, StorageKey)
	switch {
	case err == nil:
		var cfg Configuration
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return Configuration{}, fmt.Errorf("decode stored configuration: %w", err)
		}
		s.current = &cfg
	case storage.IsNotFound(err):
		cfg := s.seed
		s.current = &cfg
	default:
		return Configuration{}, fmt.Errorf("load configuration: %w", err)
	}
	return *s.current, nil
}

// Save validates and persists cfg.
func (s *PersistentStore) Save(ctx context.Context, cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Put(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("persist configuration: %w", err)
	}
	s.current = &cfg
	return nil
}
