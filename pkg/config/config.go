// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string

	// Capability tokens
	TokenSigningKey string
	TokenIssuer     string
	TokenDefaultTTL string // seconds or <int><s|m|h|d>

	// Request signatures
	DefaultTenantSecret string // legacy fallback for tenants with no provisioned secret
	EncryptionKey       string // seals tenant secrets at rest
	SignatureTolerance  time.Duration
	MaxBodyBytes        int64

	// Rate limits
	RateLimitDefault int64
	RateLimitWindow  time.Duration

	// Tenant context
	ContextCacheTTL time.Duration
	SessionTTL      time.Duration

	AdminAPIKey          string
	TenantSeedJSON       string
	TenantSeedFile       string
	RevocationPurgeEvery time.Duration
	KVBreakerThreshold   int
	AutoMigrate          bool
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                  env("TENANTGATE_ENV", "dev"),
		HTTPAddr:             env("TENANTGATE_HTTP_ADDR", ":8080"),
		LogLevel:             env("LOG_LEVEL", ""),
		RedisURL:             env("REDIS_URL", ""),
		DatabaseURL:          env("DATABASE_URL", ""),
		TokenSigningKey:      env("TOKEN_SIGNING_KEY", ""),
		TokenIssuer:          env("TOKEN_ISSUER", "tenantgate"),
		TokenDefaultTTL:      env("TOKEN_DEFAULT_TTL", "1h"),
		DefaultTenantSecret:  env("DEFAULT_TENANT_SECRET", ""),
		EncryptionKey:        env("ENCRYPTION_KEY", ""),
		SignatureTolerance:   envDur("SIGNATURE_TOLERANCE_SEC", 300) * time.Second,
		MaxBodyBytes:         int64(envInt("MAX_BODY_BYTES", 1<<20)),
		RateLimitDefault:     int64(envInt("RATE_LIMIT_DEFAULT", 100)),
		RateLimitWindow:      envDur("RATE_LIMIT_WINDOW_SEC", 60) * time.Second,
		ContextCacheTTL:      envDur("CONTEXT_CACHE_TTL_SEC", 3600) * time.Second,
		SessionTTL:           envDur("SESSION_TTL_SEC", 86400) * time.Second,
		AdminAPIKey:          env("ADMIN_API_KEY", ""),
		TenantSeedJSON:       env("TENANT_SEED_JSON", ""),
		TenantSeedFile:       env("TENANT_SEED_FILE", ""),
		RevocationPurgeEvery: envDur("REVOCATION_PURGE_INTERVAL_SEC", 900) * time.Second,
		KVBreakerThreshold:   envInt("KV_BREAKER_THRESHOLD", 5),
		AutoMigrate:          envBool("DB_AUTO_MIGRATE", true),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; using in-memory durable stores for dev")
	}
	if cfg.RedisURL == "" {
		log.Println("[WARN] REDIS_URL not set; using in-memory key-value store for dev")
	}
	if cfg.TokenSigningKey == "" && cfg.Env != "prod" {
		log.Println("[WARN] TOKEN_SIGNING_KEY not set; using an insecure dev key")
		cfg.TokenSigningKey = "dev-insecure-signing-key"
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
