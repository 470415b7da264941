// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool      // Connection pool to PostgreSQL
	log    *zap.SugaredLogger // Logger for diagnostic output
}

// NewPostgresProvider constructs a PostgreSQL-backed tenant provider.
// The schema is owned by db.RunMigrations.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

const tenantColumns = `id, site_id, allowed_origins, permissions, active, COALESCE(rate_limit, 0)`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	if err := row.Scan(&t.ID, &t.SiteID, &t.AllowedOrigins, &t.Permissions, &t.Active, &t.RateLimit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("scan tenant: %w", err)
	}
	return t, nil
}

// ResolveTenantByID fetches a tenant by id.
func (p *pgProvider) ResolveTenantByID(ctx context.Context, id string) (Tenant, error) {
	return scanTenant(p.dbPool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id=$1`, id))
}

// ResolveTenantBySite fetches a tenant using its site id.
func (p *pgProvider) ResolveTenantBySite(ctx context.Context, siteID string) (Tenant, error) {
	return scanTenant(p.dbPool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE site_id=$1`, siteID))
}

// UpsertTenant inserts or replaces a tenant row.
func (p *pgProvider) UpsertTenant(ctx context.Context, t Tenant) error {
	var limit *int64
	if t.RateLimit > 0 {
		limit = &t.RateLimit
	}
	origins, perms := t.AllowedOrigins, t.Permissions
	if origins == nil {
		origins = []string{}
	}
	if perms == nil {
		perms = []string{}
	}
	_, err := p.dbPool.Exec(ctx, `INSERT INTO tenants(id,site_id,allowed_origins,permissions,active,rate_limit)
	  VALUES ($1,$2,$3,$4,$5,$6)
	  ON CONFLICT (id) DO UPDATE SET site_id=EXCLUDED.site_id, allowed_origins=EXCLUDED.allowed_origins,
	    permissions=EXCLUDED.permissions, active=EXCLUDED.active, rate_limit=EXCLUDED.rate_limit, updated_at=NOW()`,
		t.ID, t.SiteID, origins, perms, t.Active, limit)
	if err != nil {
		return fmt.Errorf("upsert tenant %s: %w", t.ID, err)
	}
	return nil
}
