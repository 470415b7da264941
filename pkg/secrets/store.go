// Package secrets manages per-tenant request-signing secrets: one active value per tenant, rotated atomically.
package secrets

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoActiveSecret means the tenant has no provisioned secret.
var ErrNoActiveSecret = errors.New("no active secret")

type Secret struct {
	ID        string
	TenantID  string
	Value     string
	Label     string
	Active    bool
	CreatedAt time.Time
}

type Store interface {
	Active(ctx context.Context, tenantID string) (Secret, error)
	// Rotate deactivates every active secret for next.TenantID and stores next as the only active one, atomically.
	Rotate(ctx context.Context, next Secret) error
}

type memStore struct {
	mu       sync.RWMutex
	byTenant map[string][]Secret
}

func NewMemoryStore() Store {
	return &memStore{byTenant: map[string][]Secret{}}
}

func (m *memStore) Active(_ context.Context, tenantID string) (Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.byTenant[tenantID] {
		if s.Active {
			return s, nil
		}
	}
	return Secret{}, ErrNoActiveSecret
}

func (m *memStore) Rotate(_ context.Context, next Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byTenant[next.TenantID]
	for i := range list {
		list[i].Active = false
	}
	next.Active = true
	m.byTenant[next.TenantID] = append(list, next)
	return nil
}
