package versionstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	version  string
	metadata *string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CurrentVersion(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

func (m *MemoryStore) SetCurrentVersion(_ context.Context, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = v
	return nil
}

func (m *MemoryStore) Metadata(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metadata == nil {
		return "", false, nil
	}
	return *m.metadata, true, nil
}

func (m *MemoryStore) SetMetadata(_ context.Context, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata = &v
	return nil
}
