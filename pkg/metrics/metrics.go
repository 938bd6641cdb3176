package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by credential kind and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"kind", "result"},
	)

	// APIKeyVerifications counts API key verification outcomes
	// (success|invalid_format|not_found|expired|revoked).
	APIKeyVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_api_key_verifications_total",
			Help: "Total number of API key verification attempts",
		},
		[]string{"result"},
	)

	// RateLimitRejections counts requests rejected by the per-key rate limiter.
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_rate_limit_rejections_total",
			Help: "Requests rejected because an API key exceeded its limit",
		},
	)

	// TokenRotations counts refresh-token rotations by outcome (rotated|replayed|denied).
	TokenRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_token_rotations_total",
			Help: "Refresh token rotation attempts",
		},
		[]string{"outcome"},
	)

	// TokenReuse counts refresh-token reuse outside the grace window, a
	// security-relevant signal distinct from ordinary expiry.
	TokenReuse = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_token_reuse_total",
			Help: "Refresh tokens presented after revocation outside the grace window",
		},
	)

	// ActiveSessions tracks live interactive sessions (not expired/evicted).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argus_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
