package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// MemoryStore keeps configurations in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[key]*ucr.Configuration
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[key]*ucr.Configuration),
		now:     time.Now,
	}
}

// Put stores a copy of cfg as the active configuration for its identity.
func (s *MemoryStore) Put(cfg *ucr.Configuration) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}
	if cfg.TenantID == "" || cfg.UserID == "" {
		return fmt.Errorf("configuration %q has no tenant or user id", cfg.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[key{cfg.TenantID, cfg.UserID}] = cfg.Clone()
	return nil
}

// Active implements ConfigurationStore.
func (s *MemoryStore) Active(ctx context.Context, tenantID, userID string) (*ucr.Configuration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[key{tenantID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg.Clone(), nil
}

// SaveGovernance implements ConfigurationStore.
func (s *MemoryStore) SaveGovernance(ctx context.Context, tenantID, userID string, gov ucr.Governance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[key{tenantID, userID}]
	if !ok {
		return ErrNotFound
	}
	cfg.Governance = gov.Clone()
	cfg.UpdatedAt = s.now()
	return nil
}
