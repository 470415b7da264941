// cmd/gateway-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tenantgate/internal/gateway"
	"tenantgate/pkg/authn"
	"tenantgate/pkg/config"
	"tenantgate/pkg/db"
	"tenantgate/pkg/kv"
	"tenantgate/pkg/logger"
	"tenantgate/pkg/middleware"
	"tenantgate/pkg/ratelimit"
	"tenantgate/pkg/replay"
	"tenantgate/pkg/secrets"
	"tenantgate/pkg/signature"
	"tenantgate/pkg/tenantctx"
	"tenantgate/pkg/tenants"
	"tenantgate/pkg/tokens"
)

// revoked rows are kept this long past expiry for audit before the janitor drops them
const purgeGrace = 24 * time.Hour

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "gateway-service", cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL != "" && cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := db.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			log.Fatalw("migrations", "err", err)
		}
		cancel()
	}
	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var store kv.Store
	if rdb != nil {
		store = kv.WithBreaker(kv.NewRedisStore(rdb, ""), kv.BreakerSettings{
			Name:      "redis",
			Threshold: uint32(cfg.KVBreakerThreshold),
		}, log)
	} else {
		store = kv.NewMemoryStore()
	}

	seed, err := tenants.LoadSeed(cfg.TenantSeedJSON, cfg.TenantSeedFile)
	if err != nil {
		log.Fatalw("tenant seed", "err", err)
	}

	var (
		prov     tenants.Provider
		registry tokens.Registry
		secStore secrets.Store
		ctxRepo  tenantctx.Repository
	)
	ready := map[string]gateway.Pinger{"kv": store}
	if pool != nil {
		prov = tenants.NewPostgresProvider(pool, log)
		if err := tenants.Seed(context.Background(), prov, seed); err != nil {
			log.Warnw("seed", "err", err)
		}
		registry = tokens.NewPostgresRegistry(pool)
		secStore = secrets.NewPostgresStore(pool, secrets.NewSealer(cfg.EncryptionKey))
		ctxRepo = tenantctx.NewPostgresRepository(pool)
		ready["postgres"] = pool
		if cfg.EncryptionKey == "" {
			log.Warnw("ENCRYPTION_KEY not set; tenant secrets are stored unsealed")
		}
	} else {
		prov = tenants.NewMemoryProvider(log, seed)
		registry = tokens.NewMemoryRegistry()
		secStore = secrets.NewMemoryStore()
		ctxRepo = tenantctx.NewMemoryRepository()
	}

	defaultTTL, err := tokens.ParseTTL(cfg.TokenDefaultTTL)
	if err != nil {
		log.Fatalw("TOKEN_DEFAULT_TTL", "value", cfg.TokenDefaultTTL, "err", err)
	}
	if cfg.TokenSigningKey == "" {
		log.Fatalw("TOKEN_SIGNING_KEY is required")
	}
	issuer := tokens.NewIssuer(registry, tokens.Options{
		SigningKey: []byte(cfg.TokenSigningKey),
		Issuer:     cfg.TokenIssuer,
		DefaultTTL: defaultTTL,
	}, log)

	if cfg.DefaultTenantSecret != "" {
		log.Warnw("DEFAULT_TENANT_SECRET set; tenants without a secret share it")
	}
	mgr := secrets.NewManager(secStore, cfg.DefaultTenantSecret, log)
	guard := replay.NewGuard(store, cfg.SignatureTolerance)
	contexts := tenantctx.NewStore(ctxRepo, store, tenantctx.Options{
		CacheTTL:   cfg.ContextCacheTTL,
		SessionTTL: cfg.SessionTTL,
	}, log)

	pipeline := authn.New(authn.Deps{
		Tokens:     issuer,
		Limiter:    ratelimit.New(store, cfg.RateLimitDefault, cfg.RateLimitWindow),
		Signatures: signature.NewValidator(guard, mgr, log),
		Sessions:   contexts,
		Tenants:    prov,
	}, authn.Options{MaxBodyBytes: cfg.MaxBodyBytes}, log)

	app := gateway.New(log, gateway.Deps{
		Tokens:   issuer,
		Secrets:  mgr,
		Contexts: contexts,
		Tenants:  prov,
		Pipeline: pipeline,
		Ready:    ready,
	}, gateway.Config{
		Env:         cfg.Env,
		AdminAPIKey: cfg.AdminAPIKey,
		Middleware:  []func(http.Handler) http.Handler{middleware.Tracing(cfg, log)},
	})

	ctx, stopJanitor := context.WithCancel(context.Background())
	go purgeRevocations(ctx, issuer, cfg.RevocationPurgeEvery, log)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("gateway-service listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	stopJanitor()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = middleware.ShutdownTracing(shutdownCtx)
	if pool != nil {
		pool.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	fmt.Println("gateway-service stopped")
}

// purgeRevocations drops expired registry rows every interval until ctx is done.
func purgeRevocations(ctx context.Context, issuer *tokens.Issuer, every time.Duration, log *zap.SugaredLogger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := issuer.PurgeExpired(ctx, purgeGrace)
			if err != nil {
				log.Warnw("token registry purge failed", "err", err)
				continue
			}
			if n > 0 {
				log.Infow("token registry purged", "rows", n)
			}
		}
	}
}
