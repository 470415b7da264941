package tenants

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSeed reads tenant definitions from TENANT_SEED_JSON and/or TENANT_SEED_FILE.
// The file may be YAML or JSON (JSON is valid YAML). Entries from the file win on id clashes.
//
//	- id: acme
//	  siteId: acme-site
//	  allowedOrigins: ["https://acme.example"]
//	  permissions: [read, write]
//	  active: true
func LoadSeed(jsonSeed, file string) ([]Tenant, error) {
	var out []Tenant
	if jsonSeed != "" {
		var entries []Tenant
		if err := yaml.Unmarshal([]byte(jsonSeed), &entries); err != nil {
			return nil, fmt.Errorf("parse TENANT_SEED_JSON: %w", err)
		}
		out = append(out, entries...)
	}
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read tenant seed file: %w", err)
		}
		var entries []Tenant
		if err := yaml.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("parse tenant seed file: %w", err)
		}
		out = append(out, entries...)
	}
	return dedupe(out), nil
}

func dedupe(in []Tenant) []Tenant {
	idx := map[string]int{}
	var out []Tenant
	for _, t := range in {
		if i, ok := idx[t.ID]; ok {
			out[i] = t
			continue
		}
		idx[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}

// Seed upserts every tenant into p.
func Seed(ctx context.Context, p Provider, seed []Tenant) error {
	for _, t := range seed {
		if t.ID == "" || t.SiteID == "" {
			return fmt.Errorf("seed tenant missing id or siteId: %+v", t)
		}
		if err := p.UpsertTenant(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
