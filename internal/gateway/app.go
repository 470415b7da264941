package gateway

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"tenantgate/pkg/authn"
	"tenantgate/pkg/secrets"
	"tenantgate/pkg/tenantctx"
	"tenantgate/pkg/tenants"
	"tenantgate/pkg/tokens"
)

// Pinger reports whether a backing store is reachable. Used by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the HTTP surface fronts. Ready may be empty.
type Deps struct {
	Tokens   *tokens.Issuer
	Secrets  *secrets.Manager
	Contexts *tenantctx.Store
	Tenants  tenants.Provider
	Pipeline *authn.Pipeline
	Ready    map[string]Pinger
}

// App is the gateway application container.
// Handlers and middleware have methods on this type.
//
// Keep it lean: shared deps and config only.
type App struct {
	log      *zap.SugaredLogger
	deps     Deps
	adminKey string
	env      string
	extra    []func(http.Handler) http.Handler
}

// Config holds gateway HTTP configuration. An empty AdminAPIKey disables the /admin routes.
// Middleware runs after request id and panic recovery, before routing (tracing goes here).
type Config struct {
	Env         string
	AdminAPIKey string
	Middleware  []func(http.Handler) http.Handler
}

func New(log *zap.SugaredLogger, deps Deps, cfg Config) *App {
	if cfg.AdminAPIKey == "" {
		log.Warnw("ADMIN_API_KEY not set; admin routes are disabled")
	}
	return &App{log: log, deps: deps, adminKey: cfg.AdminAPIKey, env: cfg.Env, extra: cfg.Middleware}
}
