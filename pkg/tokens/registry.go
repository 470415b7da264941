package tokens

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnknownToken is returned when the registry has no row for a jti.
var ErrUnknownToken = errors.New("token not registered")

// Record is the registry row for one issued token. Only the revocation fields ever change.
type Record struct {
	JTI              string
	TenantID         string
	SiteID           string
	Origin           string
	Permissions      []string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	Revoked          bool
	RevokedAt        *time.Time
	RevocationReason string
}

// Registry is the durable record of issued token ids and their revocation state.
type Registry interface {
	Register(ctx context.Context, rec Record) error
	Lookup(ctx context.Context, jti string) (Record, error)
	// Revoke marks jti revoked. Revoking twice keeps the first reason.
	Revoke(ctx context.Context, jti, reason string, at time.Time) error
	// PurgeExpired deletes rows whose expiry is before the cutoff and returns how many went.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type memRegistry struct {
	mu   sync.RWMutex
	rows map[string]Record
}

// NewMemoryRegistry returns a process-local Registry for dev mode and tests.
func NewMemoryRegistry() Registry {
	return &memRegistry{rows: map[string]Record{}}
}

func (m *memRegistry) Register(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[rec.JTI]; exists {
		return errors.New("duplicate jti")
	}
	rec.Permissions = append([]string(nil), rec.Permissions...)
	m.rows[rec.JTI] = rec
	return nil
}

func (m *memRegistry) Lookup(_ context.Context, jti string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[jti]
	if !ok {
		return Record{}, ErrUnknownToken
	}
	return rec, nil
}

func (m *memRegistry) Revoke(_ context.Context, jti, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[jti]
	if !ok {
		return ErrUnknownToken
	}
	if rec.Revoked {
		return nil
	}
	rec.Revoked = true
	rec.RevokedAt = &at
	rec.RevocationReason = reason
	m.rows[jti] = rec
	return nil
}

func (m *memRegistry) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, rec := range m.rows {
		if rec.ExpiresAt.Before(before) {
			delete(m.rows, jti)
			n++
		}
	}
	return n, nil
}
