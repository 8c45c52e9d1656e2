package storage

import (
	"sync"

	"authhub/pkg/oauth"
)

// MemoryStore keeps the record in process memory only. It is lost on exit.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *oauth.TokenRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// GetTokens returns a copy of the stored record.
func (m *MemoryStore) GetTokens() (*oauth.TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.Clone(), nil
}

// SetTokens replaces the stored record with a copy of rec.
func (m *MemoryStore) SetTokens(rec *oauth.TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = rec.Clone()
	return nil
}

// ClearTokens drops the stored record.
func (m *MemoryStore) ClearTokens() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}
