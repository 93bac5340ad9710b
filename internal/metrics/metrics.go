// Package metrics provides Prometheus metrics for the cache manager and the
// sync coordinator.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cache policies and outcomes used as label values.
const (
	PolicyPassthrough = "passthrough"
	PolicyAPI         = "api"
	PolicyCacheFirst  = "cache_first"

	OutcomeNetwork     = "network"
	OutcomeCacheHit    = "cache_hit"
	OutcomeStored      = "stored"
	OutcomeUnavailable = "unavailable"
	OutcomeShell       = "shell_fallback"
	OutcomeFailed      = "failed"
)

var (
	// cacheRequestsTotal counts intercepted requests.
	// Labels:
	//   - policy: passthrough, api, cache_first
	//   - outcome: network, cache_hit, stored, unavailable, shell_fallback, failed
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hours_cache_requests_total",
			Help: "Total number of requests intercepted by the cache manager",
		},
		[]string{"policy", "outcome"},
	)

	// cacheGenerationsDeleted counts stale cache generations removed on activation.
	cacheGenerationsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hours_cache_generations_deleted_total",
			Help: "Total number of stale cache generations deleted on activation",
		},
	)

	// syncPushesTotal counts snapshot pushes by status (success, failed, rejected, not_connected).
	syncPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hours_sync_pushes_total",
			Help: "Total number of snapshot pushes to the sync target",
		},
		[]string{"status"},
	)

	// syncPushDuration records how long pushes take.
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s
	syncPushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hours_sync_push_duration_seconds",
			Help:    "Duration of snapshot pushes in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(cacheRequestsTotal)
	prometheus.MustRegister(cacheGenerationsDeleted)
	prometheus.MustRegister(syncPushesTotal)
	prometheus.MustRegister(syncPushDuration)
}

// RecordCacheRequest records one interception decision.
func RecordCacheRequest(policy, outcome string) {
	cacheRequestsTotal.WithLabelValues(policy, outcome).Inc()
}

// RecordGenerationDeleted records a stale generation removal.
func RecordGenerationDeleted() {
	cacheGenerationsDeleted.Inc()
}

// RecordSyncPush records a push attempt and, for attempts that reached the
// target, its duration.
func RecordSyncPush(status string, seconds float64) {
	syncPushesTotal.WithLabelValues(status).Inc()
	if seconds > 0 {
		syncPushDuration.Observe(seconds)
	}
}
