// Package metrics holds the gateway's Prometheus collectors, registered on the default registry
// and served by promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthOutcomes counts pipeline results by outcome ("authenticated" or a rejection kind).
	AuthOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_auth_outcomes_total",
			Help: "Authentication pipeline outcomes by result",
		},
		[]string{"outcome"},
	)

	AuthDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_auth_duration_seconds",
			Help:    "Duration of the authentication pipeline in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"outcome"},
	)

	TokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_tokens_issued_total",
			Help: "Capability tokens minted",
		},
	)

	TokensRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_tokens_revoked_total",
			Help: "Capability tokens revoked",
		},
	)

	TokensPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_tokens_purged_total",
			Help: "Expired registry rows removed by the janitor",
		},
	)

	ReplaysBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_replays_blocked_total",
			Help: "Signed requests rejected because the nonce was already used",
		},
	)

	SecretRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_secret_rotations_total",
			Help: "Tenant signing secret rotations",
		},
	)

	DefaultSecretFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_default_secret_fallbacks_total",
			Help: "Signature checks that used the shared default secret",
		},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_rate_limited_total",
			Help: "Requests rejected by the per-tenant rate limiter",
		},
	)

	ContextCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_context_cache_total",
			Help: "Tenant context cache lookups by result",
		},
		[]string{"result"}, // hit | miss | error
	)
)
