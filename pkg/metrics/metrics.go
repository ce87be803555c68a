// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListingsClassifiedTotal tracks batch items by outcome and the method that decided it
	ListingsClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "dedup",
			Name:      "listings_classified_total",
			Help:      "Total number of listings classified by status and match method",
		},
		[]string{"status", "method"},
	)

	// BatchDuration tracks batch processing duration in seconds
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "dedup",
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch deduplication runs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// ItemDuration tracks per-item resolution time in seconds
	ItemDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "dedup",
			Name:      "item_duration_seconds",
			Help:      "Time spent resolving a single listing in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// BatchErrorsTotal tracks items that could not be classified
	BatchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "dedup",
			Name:      "item_errors_total",
			Help:      "Total number of batch items that failed classification",
		},
	)

	// CandidatesPrefetched tracks the candidate slice size loaded per batch
	CandidatesPrefetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "blocking",
			Name:      "candidates_prefetched",
			Help:      "Number of stored candidates loaded into a block index",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// CandidateCacheTotal tracks block cache lookups by result
	CandidateCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "blocking",
			Name:      "cache_lookups_total",
			Help:      "Total number of candidate cache lookups by result",
		},
		[]string{"result"},
	)

	// SingleMatchesTotal tracks single-item resolutions by method
	SingleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "resolutions_total",
			Help:      "Total number of single-listing resolutions by match method",
		},
		[]string{"method"},
	)

	// KafkaMessagesTotal tracks consumed and produced messages
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total number of Kafka messages by direction and status",
		},
		[]string{"direction", "topic", "status"},
	)
)

// RecordClassification records one classified batch item
func RecordClassification(status, method string, durationSeconds float64) {
	ListingsClassifiedTotal.WithLabelValues(status, method).Inc()
	ItemDuration.Observe(durationSeconds)
}

// RecordItemError records a batch item that failed classification
func RecordItemError() {
	BatchErrorsTotal.Inc()
}

// RecordBatch records a completed or aborted batch run
func RecordBatch(outcome string, durationSeconds float64) {
	BatchDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordPrefetch records the size of a pre-fetched candidate slice
func RecordPrefetch(count int) {
	CandidatesPrefetched.Observe(float64(count))
}

// RecordCacheLookup records a candidate cache hit, miss or error
func RecordCacheLookup(result string) {
	CandidateCacheTotal.WithLabelValues(result).Inc()
}

// RecordSingleMatch records a single-listing resolution
func RecordSingleMatch(method string) {
	SingleMatchesTotal.WithLabelValues(method).Inc()
}

// RecordKafkaMessage records a consumed or produced Kafka message
func RecordKafkaMessage(direction, topic, status string) {
	KafkaMessagesTotal.WithLabelValues(direction, topic, status).Inc()
}
