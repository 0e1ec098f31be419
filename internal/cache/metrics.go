package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// hits tracks cache hits per operation (derived from the key prefix).
	hits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_cache_hits_total",
		Help: "Total number of cache hits by operation",
	}, []string{"operation"})

	// misses tracks cache misses per operation.
	misses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_cache_misses_total",
		Help: "Total number of cache misses by operation",
	}, []string{"operation"})

	// backendErrors tracks swallowed backend failures. Staleness is monitored
	// through this counter since cache errors never propagate.
	backendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_cache_backend_errors_total",
		Help: "Total number of cache backend failures by stage",
	}, []string{"stage"})

	// groupInvalidations tracks group invalidations and their key counts.
	groupInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_cache_group_invalidations_total",
		Help: "Total number of cache group invalidations by group",
	}, []string{"group"})

	// invalidatedKeys tracks how many keys each invalidation removed.
	invalidatedKeys = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deals_cache_invalidated_keys",
		Help:    "Number of keys removed per group invalidation",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
	})

	// invalidationErrors tracks best-effort invalidation failures.
	invalidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_cache_invalidation_errors_total",
		Help: "Total number of failed group invalidations by group",
	}, []string{"group"})
)

func recordHit(operation string)      { hits.WithLabelValues(operation).Inc() }
func recordMiss(operation string)     { misses.WithLabelValues(operation).Inc() }
func recordBackendError(stage string) { backendErrors.WithLabelValues(stage).Inc() }

// recordInvalidationError labels by group family (e.g. "category", not
// "category:42") to keep metric cardinality bounded.
func recordInvalidationError(group string) {
	invalidationErrors.WithLabelValues(opLabel(group)).Inc()
}

func recordGroupInvalidation(group string, keyCount int) {
	groupInvalidations.WithLabelValues(opLabel(group)).Inc()
	invalidatedKeys.Observe(float64(keyCount))
}
