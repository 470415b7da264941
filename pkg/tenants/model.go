package tenants

import "errors"

// ErrNotFound is returned when no tenant matches.
var ErrNotFound = errors.New("tenant not found")

// Tenant is the gateway's view of a customer account. Onboarding and CRUD live elsewhere.
type Tenant struct {
	ID             string   `json:"id" yaml:"id"`
	SiteID         string   `json:"siteId" yaml:"siteId"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
	Permissions    []string `json:"permissions" yaml:"permissions"` // ceiling for issued tokens
	Active         bool     `json:"active" yaml:"active"`
	RateLimit      int64    `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"` // 0 = gateway default
}

// Allows reports whether every permission in requested is granted to the tenant.
func (t Tenant) Allows(requested []string) bool {
	set := make(map[string]struct{}, len(t.Permissions))
	for _, p := range t.Permissions {
		set[p] = struct{}{}
	}
	for _, r := range requested {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
