// Package tenantctx stores per-tenant runtime configuration: a durable master row fronted by a
// TTL-bound cache copy, plus cache-only sessions.
package tenantctx

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("tenant context not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidUpdate   = errors.New("invalid context update")

	// ErrInvalidExpression is returned by Select for a malformed JMESPath expression.
	ErrInvalidExpression = errors.New("invalid context path expression")
)

type Metadata struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Context is the tenant runtime document.
type Context struct {
	TenantID        string         `json:"tenantId"`
	BusinessProfile map[string]any `json:"businessProfile"`
	Branding        map[string]any `json:"branding"`
	FAQData         map[string]any `json:"faqData"`
	WorkflowState   map[string]any `json:"workflowState"`
	Limits          map[string]any `json:"limits"`
	Services        map[string]any `json:"services"`
	SalesStrategies map[string]any `json:"salesStrategies"`
	SessionIDs      []string       `json:"sessionIds"`
	Metadata        Metadata       `json:"metadata"`
}

// Session is soft state: cache-only, independently expiring, regenerated when lost.
type Session struct {
	SessionID    string    `json:"sessionId"`
	TenantID     string    `json:"tenantId"`
	SiteID       string    `json:"siteId"`
	Channel      string    `json:"channel"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}
