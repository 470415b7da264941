// pkg/tenants/memory.go
package tenants

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type memProvider struct {
	log  *zap.SugaredLogger
	mu   sync.RWMutex
	byID map[string]Tenant
}

// NewMemoryProvider returns an in-process provider holding seed. With no seed it serves a single
// "dev" tenant so the binary is usable locally.
func NewMemoryProvider(log *zap.SugaredLogger, seed []Tenant) Provider {
	p := &memProvider{log: log, byID: map[string]Tenant{}}
	if len(seed) == 0 {
		seed = []Tenant{{
			ID: "dev", SiteID: "dev-site", AllowedOrigins: []string{"http://localhost:3000"},
			Permissions: []string{"read", "write"}, Active: true,
		}}
		log.Warnw("no tenant seed; serving dev tenant", "tenantId", "dev")
	}
	for _, t := range seed {
		p.byID[t.ID] = t
	}
	return p
}

func (m *memProvider) ResolveTenantByID(ctx context.Context, id string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.byID[id]; ok {
		return t, nil
	}
	return Tenant{}, ErrNotFound
}

func (m *memProvider) ResolveTenantBySite(ctx context.Context, siteID string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.byID {
		if t.SiteID == siteID {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (m *memProvider) UpsertTenant(ctx context.Context, t Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[t.ID] = t
	return nil
}
