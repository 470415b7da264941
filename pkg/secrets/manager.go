package secrets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenantgate/pkg/metrics"
	"tenantgate/pkg/problems"
)

// Manager resolves and rotates tenant signing secrets.
type Manager struct {
	store         Store
	defaultSecret string
	log           *zap.SugaredLogger
	now           func() time.Time
}

// NewManager wires a Store. defaultSecret, when non-empty, is served to tenants with no secret of their own.
func NewManager(store Store, defaultSecret string, log *zap.SugaredLogger) *Manager {
	return &Manager{store: store, defaultSecret: defaultSecret, log: log, now: time.Now}
}

// ActiveSecret returns the tenant's single active secret value.
func (m *Manager) ActiveSecret(ctx context.Context, tenantID string) (string, error) {
	s, err := m.store.Active(ctx, tenantID)
	switch {
	case err == nil:
		return s.Value, nil
	case errors.Is(err, ErrNoActiveSecret):
		if m.defaultSecret == "" {
			return "", problems.New(problems.InvalidSignature, "tenant has no signing secret")
		}
		// shared default: any under-provisioned tenant validates against it
		m.log.Warnw("tenant has no signing secret; using default secret", "tenantId", tenantID)
		metrics.DefaultSecretFallbacks.Inc()
		return m.defaultSecret, nil
	default:
		return "", problems.Wrap(problems.StoreUnavailable, "secret store unavailable", err)
	}
}

// Rotate activates a fresh 256-bit secret for tenantID and returns it. The value is not retrievable later
// except through ActiveSecret inside the signature check.
func (m *Manager) Rotate(ctx context.Context, tenantID, label string) (Secret, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return Secret{}, err
	}
	next := Secret{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Value:     hex.EncodeToString(raw),
		Label:     label,
		Active:    true,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Rotate(ctx, next); err != nil {
		return Secret{}, problems.Wrap(problems.StoreUnavailable, "secret rotation failed", err)
	}
	metrics.SecretRotations.Inc()
	m.log.Infow("tenant secret rotated", "tenantId", tenantID, "secretId", next.ID, "label", label)
	return next, nil
}
