package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_evaluations_total",
		Help: "Total resource evaluations by resulting action",
	}, []string{"action"})
	policyHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_policy_hits_total",
		Help: "Total evaluations resolved by a stored policy",
	})
	threatsDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_threats_detected_total",
		Help: "Total scored evaluations at suspicious level or above",
	})
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_policy_cache_hits_total",
		Help: "Total policy cache hits",
	})
	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_policy_cache_misses_total",
		Help: "Total policy cache misses",
	})
	rateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_rate_limit_rejected_total",
		Help: "Total requests over the rate limit by endpoint class",
	}, []string{"class"})
	scansStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_scans_started_total",
		Help: "Total scans handed off to the external scanner",
	})
	scansDiscardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_scan_results_discarded_total",
		Help: "Total scan results discarded because the target went away",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		evaluationsTotal, policyHitsTotal, threatsDetectedTotal,
		cacheHitsTotal, cacheMissesTotal, rateLimitRejectedTotal,
		scansStartedTotal, scansDiscardedTotal,
	)
}

// IncEvaluation counts one evaluation by resulting action.
func IncEvaluation(action string) { evaluationsTotal.WithLabelValues(action).Inc() }

// IncPolicyHit counts an evaluation resolved by a stored policy.
func IncPolicyHit() { policyHitsTotal.Inc() }

// IncThreatDetected counts a scored evaluation at suspicious level or above.
func IncThreatDetected() { threatsDetectedTotal.Inc() }

// IncCacheHit counts a policy cache hit.
func IncCacheHit() { cacheHitsTotal.Inc() }

// IncCacheMiss counts a policy cache miss.
func IncCacheMiss() { cacheMissesTotal.Inc() }

// IncRateLimitRejected counts a request over the limit for a class.
func IncRateLimitRejected(class string) { rateLimitRejectedTotal.WithLabelValues(class).Inc() }

// IncScanStarted counts a scan hand-off.
func IncScanStarted() { scansStartedTotal.Inc() }

// IncScanDiscarded counts a scan result dropped for a dead target.
func IncScanDiscarded() { scansDiscardedTotal.Inc() }
