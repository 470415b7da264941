package gateway

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tenantgate/pkg/problems"
	"tenantgate/pkg/tenantctx"
	"tenantgate/pkg/tenants"
	"tenantgate/pkg/tokens"
)

type issueBody struct {
	TenantID    string   `json:"tenantId"`
	SiteID      string   `json:"siteId"`
	Origin      string   `json:"origin"`
	Permissions []string `json:"permissions"`
	TTL         any      `json:"ttl"`
}

type issuedResponse struct {
	Token       string    `json:"token"`
	JTI         string    `json:"jti"`
	TenantID    string    `json:"tenantId"`
	SiteID      string    `json:"siteId"`
	Origin      string    `json:"origin"`
	Permissions []string  `json:"permissions"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (a *App) issueToken(w http.ResponseWriter, r *http.Request) {
	var b issueBody
	if err := decodeJSON(r, &b, false); err != nil {
		problems.WriteStatus(w, http.StatusBadRequest, "bad-request", "bad json")
		return
	}
	b.TenantID = strings.TrimSpace(b.TenantID)
	b.SiteID = strings.TrimSpace(b.SiteID)
	if b.TenantID == "" || b.SiteID == "" {
		problems.WriteStatus(w, http.StatusBadRequest, "bad-request", "tenantId and siteId are required")
		return
	}

	t, err := a.deps.Tenants.ResolveTenantByID(r.Context(), b.TenantID)
	if errors.Is(err, tenants.ErrNotFound) {
		problems.WriteStatus(w, http.StatusNotFound, "unknown-tenant", "tenant not found")
		return
	}
	if err != nil {
		a.log.Errorw("tenant lookup failed", "tenantId", b.TenantID, "err", err)
		problems.Write(w, problems.Wrap(problems.StoreUnavailable, "tenant store unavailable", err))
		return
	}
	switch {
	case !t.Active:
		problems.WriteStatus(w, http.StatusForbidden, "tenant-inactive", "tenant is not active")
		return
	case t.SiteID != b.SiteID:
		problems.WriteStatus(w, http.StatusBadRequest, "site-mismatch", "siteId does not belong to tenant")
		return
	case !t.Allows(b.Permissions):
		problems.WriteStatus(w, http.StatusForbidden, "insufficient-permissions", "requested permissions exceed the tenant's grant")
		return
	case b.Origin != "" && len(t.AllowedOrigins) > 0 && !slices.Contains(t.AllowedOrigins, b.Origin):
		problems.WriteStatus(w, http.StatusBadRequest, "origin-not-allowed", "origin is not allowed for tenant")
		return
	}

	out, err := a.deps.Tokens.Issue(r.Context(), tokens.IssueRequest{
		TenantID: b.TenantID, SiteID: b.SiteID, Origin: b.Origin, Permissions: b.Permissions, TTL: b.TTL,
	})
	if errors.Is(err, tokens.ErrInvalidRequest) {
		problems.WriteStatus(w, http.StatusBadRequest, "bad-request", err.Error())
		return
	}
	if err != nil {
		problems.Write(w, err)
		return
	}
	writeJSON(w, issuedResponse{
		Token:       out.Token,
		JTI:         out.Claims.JTI,
		TenantID:    out.Claims.TenantID,
		SiteID:      out.Claims.SiteID,
		Origin:      out.Claims.Origin,
		Permissions: out.Claims.Permissions,
		IssuedAt:    out.Claims.IssuedAt,
		ExpiresAt:   out.Claims.ExpiresAt,
	}, http.StatusCreated)
}

func (a *App) revokeToken(w http.ResponseWriter, r *http.Request) {
	jti := chi.URLParam(r, "jti")
	var b struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &b, true); err != nil {
		problems.WriteStatus(w, http.StatusBadRequest, "bad-request", "bad json")
		return
	}
	err := a.deps.Tokens.Revoke(r.Context(), jti, b.Reason)
	if errors.Is(err, tokens.ErrUnknownToken) {
		problems.WriteStatus(w, http.StatusNotFound, "unknown-token", "token not found")
		return
	}
	if err != nil {
		problems.Write(w, err)
		return
	}
	writeJSON(w, map[string]any{"jti": jti, "revoked": true}, http.StatusOK)
}

func (a *App) rotateSecret(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	var b struct {
		Label string `json:"label"`
	}
	if err := decodeJSON(r, &b, true); err != nil {
		problems.WriteStatus(w, http.StatusBadRequest, "bad-request", "bad json")
		return
	}
	if _, err := a.deps.Tenants.ResolveTenantByID(r.Context(), tenantID); err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			problems.WriteStatus(w, http.StatusNotFound, "unknown-tenant", "tenant not found")
			return
		}
		problems.Write(w, problems.Wrap(problems.StoreUnavailable, "tenant store unavailable", err))
		return
	}
	sec, err := a.deps.Secrets.Rotate(r.Context(), tenantID, b.Label)
	if err != nil {
		a.log.Errorw("secret rotation failed", "tenantId", tenantID, "err", err)
		problems.Write(w, err)
		return
	}
	// the only time the value leaves the gateway
	writeJSON(w, map[string]any{
		"secretId":  sec.ID,
		"tenantId":  sec.TenantID,
		"secret":    sec.Value,
		"label":     sec.Label,
		"createdAt": sec.CreatedAt,
	}, http.StatusCreated)
}

func (a *App) initializeContext(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	seed := map[string]any{}
	if err := decodeJSON(r, &seed, true); err != nil {
		problems.WriteStatus(w, http.StatusBadRequest, "bad-request", "bad json")
		return
	}
	c, created, err := a.deps.Contexts.Initialize(r.Context(), tenantID, seed)
	if err != nil {
		a.writeContextErr(w, tenantID, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, c, status)
}

func (a *App) deleteContext(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if err := a.deps.Contexts.Delete(r.Context(), tenantID); err != nil {
		a.writeContextErr(w, tenantID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) writeContextErr(w http.ResponseWriter, tenantID string, err error) {
	switch {
	case errors.Is(err, tenantctx.ErrNotFound):
		problems.WriteStatus(w, http.StatusNotFound, "context-not-found", "tenant context not found")
	case errors.Is(err, tenantctx.ErrInvalidUpdate), errors.Is(err, tenantctx.ErrInvalidExpression):
		problems.WriteStatus(w, http.StatusBadRequest, "bad-request", err.Error())
	default:
		a.log.Errorw("tenant context store failed", "tenantId", tenantID, "err", err)
		problems.Write(w, problems.Wrap(problems.StoreUnavailable, "context store unavailable", err))
	}
}
