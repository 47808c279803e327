package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Indexing and query pipeline Prometheus metrics.
var (
	RebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "index_rebuilds_total",
			Help:      "Total number of index rebuilds",
		},
		[]string{"status"}, // "success" / "error" / "busy"
	)

	RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Name:      "index_rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	RebuildChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Name:      "index_rebuild_chunks",
			Help:      "Number of chunks produced per successful rebuild",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		},
	)

	IndexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqa",
			Name:      "index_documents",
			Help:      "Documents in the active index snapshot",
		},
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqa",
			Name:      "index_chunks",
			Help:      "Chunks in the active index snapshot",
		},
	)

	AsksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "ask_total",
			Help:      "Total ask calls by outcome",
		},
		[]string{"status", "kind"},
	)

	AskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Name:      "ask_duration_seconds",
			Help:      "Ask call duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
)

var ragMetricsRegistered bool

// RegisterRAGMetrics registers Prometheus indexing and query metrics. Must be called once from main.
func RegisterRAGMetrics() {
	if ragMetricsRegistered {
		return
	}
	prometheus.MustRegister(RebuildsTotal)
	prometheus.MustRegister(RebuildDuration)
	prometheus.MustRegister(RebuildChunks)
	prometheus.MustRegister(IndexDocuments)
	prometheus.MustRegister(IndexChunks)
	prometheus.MustRegister(AsksTotal)
	prometheus.MustRegister(AskDuration)
	ragMetricsRegistered = true
}

// RecordIndexSnapshot updates the active snapshot gauges.
func RecordIndexSnapshot(documents, chunks int) {
	IndexDocuments.Set(float64(documents))
	IndexChunks.Set(float64(chunks))
}

// RecordRebuild records a finished rebuild attempt.
func RecordRebuild(status string, duration time.Duration, chunks int) {
	RebuildsTotal.WithLabelValues(status).Inc()
	if status != "success" {
		return
	}
	RebuildDuration.Observe(duration.Seconds())
	RebuildChunks.Observe(float64(chunks))
}

// RecordAsk records a finished ask call.
func RecordAsk(status, kind string, duration time.Duration) {
	if kind == "" {
		kind = "none"
	}
	AsksTotal.WithLabelValues(status, kind).Inc()
	AskDuration.WithLabelValues(status).Observe(duration.Seconds())
}
