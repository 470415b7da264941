package tenantctx

import (
	"context"
	"encoding/json"
	"sync"
)

// Repository is the durable source of truth for tenant contexts.
type Repository interface {
	Load(ctx context.Context, tenantID string) (Context, error)
	// Insert stores c unless a row already exists; created reports which happened.
	Insert(ctx context.Context, c Context) (created bool, err error)
	// Mutate applies fn to the stored row under a row lock and persists the result.
	Mutate(ctx context.Context, tenantID string, fn func(*Context) error) (Context, error)
	Delete(ctx context.Context, tenantID string) error
}

type memRepository struct {
	mu   sync.Mutex
	rows map[string][]byte
}

// NewMemoryRepository keeps rows as JSON so callers never share maps with the store.
func NewMemoryRepository() Repository {
	return &memRepository{rows: map[string][]byte{}}
}

func (m *memRepository) Load(_ context.Context, tenantID string) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(tenantID)
}

func (m *memRepository) loadLocked(tenantID string) (Context, error) {
	raw, ok := m.rows[tenantID]
	if !ok {
		return Context{}, ErrNotFound
	}
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return Context{}, err
	}
	return c, nil
}

func (m *memRepository) Insert(_ context.Context, c Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.TenantID]; ok {
		return false, nil
	}
	raw, err := encodeDurable(c)
	if err != nil {
		return false, err
	}
	m.rows[c.TenantID] = raw
	return true, nil
}

func (m *memRepository) Mutate(_ context.Context, tenantID string, fn func(*Context) error) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.loadLocked(tenantID)
	if err != nil {
		return Context{}, err
	}
	if err := fn(&c); err != nil {
		return Context{}, err
	}
	raw, err := encodeDurable(c)
	if err != nil {
		return Context{}, err
	}
	m.rows[tenantID] = raw
	return c, nil
}

func (m *memRepository) Delete(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, tenantID)
	return nil
}

// encodeDurable drops session ids: they live in the cache only.
func encodeDurable(c Context) ([]byte, error) {
	c.SessionIDs = nil
	return json.Marshal(c)
}
