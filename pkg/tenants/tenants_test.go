package tenants

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadSeed_JSONAndYAMLFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- id: acme
  siteId: acme-site-v2
  permissions: [read, write]
  active: true
  rateLimit: 500
- id: globex
  siteId: globex-site
  active: false
`), 0o600))

	seed, err := LoadSeed(`[{"id":"acme","siteId":"acme-site","permissions":["read"],"active":true}]`, file)
	require.NoError(t, err)
	require.Len(t, seed, 2)
	assert.Equal(t, "acme-site-v2", seed[0].SiteID, "file entries win")
	assert.Equal(t, int64(500), seed[0].RateLimit)
	assert.False(t, seed[1].Active)
}

func TestLoadSeed_Invalid(t *testing.T) {
	_, err := LoadSeed(`{not json`, "")
	assert.Error(t, err)
	_, err = LoadSeed("", "/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(zap.NewNop().Sugar(), []Tenant{{ID: "acme", SiteID: "acme-site", Active: true}})

	got, err := p.ResolveTenantByID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme-site", got.SiteID)

	got, err = p.ResolveTenantBySite(ctx, "acme-site")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)

	_, err = p.ResolveTenantByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Seed(ctx, p, []Tenant{{ID: "x", SiteID: "x-site"}}))
	_, err = p.ResolveTenantByID(ctx, "x")
	assert.NoError(t, err)

	assert.Error(t, Seed(ctx, p, []Tenant{{ID: "y"}}))
}

func TestMemoryProvider_DevDefault(t *testing.T) {
	p := NewMemoryProvider(zap.NewNop().Sugar(), nil)
	dev, err := p.ResolveTenantByID(context.Background(), "dev")
	require.NoError(t, err)
	assert.True(t, dev.Active)
}

func TestTenant_Allows(t *testing.T) {
	tn := Tenant{Permissions: []string{"read", "write"}}
	assert.True(t, tn.Allows([]string{"read"}))
	assert.True(t, tn.Allows(nil))
	assert.False(t, tn.Allows([]string{"read", "admin"}))
}
