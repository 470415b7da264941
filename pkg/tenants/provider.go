package tenants

import (
	"context"
)

type Provider interface {
	// Resolve tenant by its id.
	ResolveTenantByID(ctx context.Context, id string) (Tenant, error)
	// Resolve tenant from the site id embedded in issued tokens.
	ResolveTenantBySite(ctx context.Context, siteID string) (Tenant, error)
	// Insert or replace a tenant row (seeding, tests).
	UpsertTenant(ctx context.Context, t Tenant) error
}
