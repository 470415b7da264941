package gateway

import (
	"errors"
	"net/http"
	"strings"

	"tenantgate/pkg/authn"
	"tenantgate/pkg/middleware"
	"tenantgate/pkg/problems"
	"tenantgate/pkg/tenantctx"
)

func (a *App) whoami(w http.ResponseWriter, r *http.Request) {
	ac, _ := authn.From(r.Context())
	writeJSON(w, ac, http.StatusOK)
}

func (a *App) getSession(w http.ResponseWriter, r *http.Request) {
	ac, _ := authn.From(r.Context())
	sess, err := a.deps.Contexts.GetSession(r.Context(), ac.TenantID, ac.SessionID)
	if errors.Is(err, tenantctx.ErrSessionNotFound) {
		// evicted between the pipeline touch and now
		problems.WriteStatus(w, http.StatusNotFound, "session-not-found", "session not found")
		return
	}
	if err != nil {
		problems.Write(w, problems.Wrap(problems.StoreUnavailable, "session store unavailable", err))
		return
	}
	writeJSON(w, sess, http.StatusOK)
}

// getContext returns the caller's tenant context, or the result of a JMESPath ?path= expression over it.
func (a *App) getContext(w http.ResponseWriter, r *http.Request) {
	ac, _ := authn.From(r.Context())
	if !middleware.HasAnyPermission(r, "read", "write") {
		problems.WriteStatus(w, http.StatusForbidden, "insufficient-permissions", "requires permission read or write")
		return
	}
	if path := strings.TrimSpace(r.URL.Query().Get("path")); path != "" {
		res, err := a.deps.Contexts.Select(r.Context(), ac.TenantID, path)
		if err != nil {
			a.writeContextErr(w, ac.TenantID, err)
			return
		}
		writeJSON(w, map[string]any{"path": path, "result": res}, http.StatusOK)
		return
	}
	c, err := a.deps.Contexts.Get(r.Context(), ac.TenantID)
	if err != nil {
		a.writeContextErr(w, ac.TenantID, err)
		return
	}
	writeJSON(w, c, http.StatusOK)
}

func (a *App) patchContext(w http.ResponseWriter, r *http.Request) {
	ac, _ := authn.From(r.Context())
	var partial map[string]any
	if err := decodeJSON(r, &partial, false); err != nil {
		problems.WriteStatus(w, http.StatusBadRequest, "bad-request", "bad json")
		return
	}
	c, err := a.deps.Contexts.Update(r.Context(), ac.TenantID, partial)
	if err != nil {
		a.writeContextErr(w, ac.TenantID, err)
		return
	}
	a.log.Infow("tenant context updated", "tenantId", ac.TenantID, "sessionId", ac.SessionID)
	writeJSON(w, c, http.StatusOK)
}
