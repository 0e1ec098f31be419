package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queryDuration tracks the time taken by each read operation.
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deals_engine_query_duration_seconds",
		Help:    "Time taken for deal discovery queries by operation",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.2, 0.5, 1, 2},
	}, []string{"operation"})

	// queryErrors tracks backing-store failures per operation.
	queryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_engine_query_errors_total",
		Help: "Total number of deal query errors by operation",
	}, []string{"operation"})

	// invalidQueries tracks fail-soft rejections of malformed geo input.
	invalidQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_engine_invalid_queries_total",
		Help: "Total number of queries rejected for out-of-range parameters",
	}, []string{"operation"})

	// candidateCount tracks candidate set sizes before ranking.
	candidateCount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deals_engine_candidates_count",
		Help:    "Number of candidate deals surviving filters, before ranking",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200},
	}, []string{"operation"})

	// nearestDealDistance tracks the distance of the closest result.
	nearestDealDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deals_engine_nearest_deal_distance_km",
		Help:    "Distance to the nearest returned deal in kilometers",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50},
	})

	// interactions tracks recorded view/click interactions.
	interactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_engine_interactions_total",
		Help: "Total number of recorded deal interactions by kind",
	}, []string{"kind"})

	// scoreRecomputes tracks sustainability score recomputations.
	scoreRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deals_engine_score_recomputes_total",
		Help: "Total number of sustainability score recomputations",
	})

	// scoreDistribution tracks recomputed score values.
	scoreDistribution = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deals_engine_sustainability_score",
		Help:    "Distribution of recomputed sustainability scores",
		Buckets: []float64{2, 4, 5, 6, 7, 8, 9, 10},
	})
)

// MetricsRecorder provides methods to record engine metrics.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordQuery records the duration and outcome of a read operation.
func (m *MetricsRecorder) RecordQuery(operation string, duration time.Duration, err error) {
	queryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		queryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordInvalidQuery records a fail-soft rejection.
func (m *MetricsRecorder) RecordInvalidQuery(operation string) {
	invalidQueries.WithLabelValues(operation).Inc()
}

// RecordCandidateCount records the candidate set size for an operation.
func (m *MetricsRecorder) RecordCandidateCount(operation string, count int) {
	candidateCount.WithLabelValues(operation).Observe(float64(count))
}

// RecordNearestDistance records the distance of the closest result.
func (m *MetricsRecorder) RecordNearestDistance(distanceKm float64) {
	nearestDealDistance.Observe(distanceKm)
}

// RecordInteraction records a view or click interaction.
func (m *MetricsRecorder) RecordInteraction(kind InteractionKind) {
	interactions.WithLabelValues(string(kind)).Inc()
}

// RecordScoreRecompute records a sustainability score recomputation.
func (m *MetricsRecorder) RecordScoreRecompute(score float64) {
	scoreRecomputes.Inc()
	scoreDistribution.Observe(score)
}
