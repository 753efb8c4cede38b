package storage

import (
	"context"
	"sync"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
)

// MemoryQuotaStore keeps session quotas in process memory. Used by the CLI
// (single implicit session) and in tests.
type MemoryQuotaStore struct {
	mu     sync.RWMutex
	quotas map[string]models.SessionQuota
}

// NewMemoryQuotaStore creates an empty in-memory store.
func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{quotas: make(map[string]models.SessionQuota)}
}

// Get returns the stored quota for the session, or nil when unseen.
func (m *MemoryQuotaStore) Get(_ context.Context, sessionID string) (*models.SessionQuota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quotas[sessionID]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

// Put stores the quota for the session.
func (m *MemoryQuotaStore) Put(_ context.Context, sessionID string, quota models.SessionQuota) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.quotas[sessionID] = quota
	return nil
}
