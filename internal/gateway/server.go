package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantgate/pkg/middleware"
	"tenantgate/pkg/openapi"
)

// apiVersion is reported in the OpenAPI document.
const apiVersion = "1.0.0"

func (a *App) describe() *openapi.Registry {
	reg := openapi.NewRegistry()
	reg.Register(
		openapi.Operation{Method: "GET", Path: "/healthz", Summary: "Liveness", Tags: []string{"ops"}, Public: true},
		openapi.Operation{Method: "GET", Path: "/readyz", Summary: "Backing store readiness", Tags: []string{"ops"}, Public: true},
		openapi.Operation{Method: "POST", Path: "/admin/tokens", Summary: "Issue a capability token", Tags: []string{"admin"}, Admin: true,
			Responses: map[string]any{"201": map[string]any{"description": "Issued"}}},
		openapi.Operation{Method: "POST", Path: "/admin/tokens/{jti}/revoke", Summary: "Revoke a token", Tags: []string{"admin"}, Admin: true},
		openapi.Operation{Method: "POST", Path: "/admin/tenants/{tenantId}/secrets/rotate", Summary: "Rotate the tenant signing secret", Tags: []string{"admin"}, Admin: true,
			Responses: map[string]any{"201": map[string]any{"description": "Rotated"}}},
		openapi.Operation{Method: "PUT", Path: "/admin/tenants/{tenantId}/context", Summary: "Initialize tenant context", Tags: []string{"admin"}, Admin: true},
		openapi.Operation{Method: "DELETE", Path: "/admin/tenants/{tenantId}/context", Summary: "Delete tenant context", Tags: []string{"admin"}, Admin: true,
			Responses: map[string]any{"204": map[string]any{"description": "Deleted"}}},
		openapi.Operation{Method: "GET", Path: "/v1/auth/whoami", Summary: "Authenticated request context", Tags: []string{"v1"}},
		openapi.Operation{Method: "GET", Path: "/v1/session", Summary: "Current session", Tags: []string{"v1"}},
		openapi.Operation{Method: "GET", Path: "/v1/context", Summary: "Tenant context, optionally narrowed by ?path= (read or write permission)", Tags: []string{"v1"}},
		openapi.Operation{Method: "PATCH", Path: "/v1/context", Summary: "Deep-merge a partial tenant context", Tags: []string{"v1"},
			Signed: true, Permissions: []string{"write"}},
	)
	return reg
}

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(middleware.DebugWriteHeader(a.log))
	for _, mw := range a.extra {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/readyz", a.ready)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/openapi.json", a.describe().ServeHandler(middleware.ServiceName, apiVersion))

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(a.adminAuth)
		ar.Post("/tokens", a.issueToken)
		ar.Post("/tokens/{jti}/revoke", a.revokeToken)
		ar.Post("/tenants/{tenantId}/secrets/rotate", a.rotateSecret)
		ar.Put("/tenants/{tenantId}/context", a.initializeContext)
		ar.Delete("/tenants/{tenantId}/context", a.deleteContext)
	})

	r.Route("/v1", func(vr chi.Router) {
		vr.Use(a.deps.Pipeline.Middleware)
		vr.Get("/auth/whoami", a.whoami)
		vr.Get("/session", a.getSession)
		vr.Get("/context", a.getContext)
		vr.With(middleware.RequirePermissions("write")).Patch("/context", a.patchContext)
	})

	return r
}

// ready pings every configured backing store.
func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]string{}
	code := http.StatusOK
	for name, p := range a.deps.Ready {
		if err := p.Ping(ctx); err != nil {
			status[name] = "down"
			code = http.StatusServiceUnavailable
			a.log.Warnw("readiness check failed", "store", name, "err", err)
			continue
		}
		status[name] = "up"
	}
	writeJSON(w, map[string]any{"ok": code == http.StatusOK, "stores": status}, code)
}
