// Package authn turns an inbound request into an authenticated tenant context or a typed rejection.
package authn

import (
	"context"
)

// Context is what downstream handlers learn about an authenticated request.
type Context struct {
	TenantID    string   `json:"tenantId"`
	SiteID      string   `json:"siteId"`
	Origin      string   `json:"origin"`
	Permissions []string `json:"permissions"`
	Channel     string   `json:"channel"`
	SessionID   string   `json:"sessionId"`
	TokenID     string   `json:"jti"`
}

type ctxKey struct{}

func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// From returns the authenticated context attached by Pipeline.Middleware.
func From(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(ctxKey{}).(*Context)
	return ac, ok && ac != nil
}
