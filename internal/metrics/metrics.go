package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the warehouse.
type Metrics struct {
	// Rollup metrics
	RollupRequests  *prometheus.CounterVec
	RollupDuration  *prometheus.HistogramVec
	LeavesProcessed prometheus.Counter
	CacheHits       *prometheus.CounterVec

	// Sync metrics
	SyncRuns        *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
	RecordsSynced   *prometheus.CounterVec
	UpstreamCalls   *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec

	// Hierarchy metrics
	MappingsApplied   *prometheus.CounterVec
	MappingConfidence prometheus.Histogram

	// System metrics
	ActiveCampaigns prometheus.Gauge
	DBConnections   *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		// Rollup metrics
		RollupRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollup_requests_total",
				Help:      "Total rollup requests by display mode",
			},
			[]string{"display_mode", "status"},
		),
		RollupDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rollup_duration_seconds",
				Help:      "End-to-end rollup computation time",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"display_mode"},
		),
		LeavesProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollup_leaves_processed_total",
				Help:      "Total leaf records fed into rollup computations",
			},
		),
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollup_cache_total",
				Help:      "Rollup response cache hits and misses",
			},
			[]string{"result"}, // hit, miss, bypass
		),

		// Sync metrics
		SyncRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Sync pipeline runs by type and outcome",
			},
			[]string{"sync_type", "status"},
		),
		SyncDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Sync pipeline run duration",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"sync_type"},
		),
		RecordsSynced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_synced_total",
				Help:      "Records written by the sync pipeline",
			},
			[]string{"entity"}, // campaigns, hourly_rows, mappings
		),
		UpstreamCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_calls_total",
				Help:      "Tracker API calls by endpoint and outcome",
			},
			[]string{"endpoint", "status"},
		),
		UpstreamLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Tracker API call latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),

		// Hierarchy metrics
		MappingsApplied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hierarchy_mappings_applied_total",
				Help:      "Hierarchy mappings written by match source",
			},
			[]string{"source"}, // rule, fallback
		),
		MappingConfidence: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "hierarchy_mapping_confidence",
				Help:      "Confidence scores of applied mappings",
				Buckets:   []float64{0.1, 0.2, 0.4, 0.6, 0.8, 1.0},
			},
		),

		// System metrics
		ActiveCampaigns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_campaigns",
				Help:      "Number of active campaigns",
			},
		),
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
	}

	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRollup records a completed rollup request.
func (m *Metrics) RecordRollup(displayMode, status string, leaves int, duration time.Duration) {
	m.RollupRequests.WithLabelValues(displayMode, status).Inc()
	m.RollupDuration.WithLabelValues(displayMode).Observe(duration.Seconds())
	if leaves > 0 {
		m.LeavesProcessed.Add(float64(leaves))
	}
}

// RecordCache records a cache lookup result.
func (m *Metrics) RecordCache(result string) {
	m.CacheHits.WithLabelValues(result).Inc()
}

// RecordSyncRun records a finished sync pipeline run.
func (m *Metrics) RecordSyncRun(syncType, status string, duration time.Duration) {
	m.SyncRuns.WithLabelValues(syncType, status).Inc()
	m.SyncDuration.WithLabelValues(syncType).Observe(duration.Seconds())
}

// RecordSynced records records written for an entity.
func (m *Metrics) RecordSynced(entity string, n int) {
	if n > 0 {
		m.RecordsSynced.WithLabelValues(entity).Add(float64(n))
	}
}

// RecordUpstreamCall records a tracker API call.
func (m *Metrics) RecordUpstreamCall(endpoint, status string, latency time.Duration) {
	m.UpstreamCalls.WithLabelValues(endpoint, status).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordMapping records an applied hierarchy mapping.
func (m *Metrics) RecordMapping(source string, confidence float64) {
	m.MappingsApplied.WithLabelValues(source).Inc()
	m.MappingConfidence.Observe(confidence)
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}
