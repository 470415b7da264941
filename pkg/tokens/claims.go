package tokens

import (
	"errors"
	"time"
)

// ErrInvalidRequest marks bad issuance input (missing ids, bad ttl).
var ErrInvalidRequest = errors.New("invalid token request")

// Claims is the decoded payload of a capability token.
type Claims struct {
	JTI         string    `json:"jti"`
	TenantID    string    `json:"tenantId"`
	SiteID      string    `json:"siteId"`
	Origin      string    `json:"origin"`
	Permissions []string  `json:"permissions"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// HasPermissions reports whether every required permission is in the token's set.
func HasPermissions(c Claims, required ...string) bool {
	have := make(map[string]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		have[p] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}
