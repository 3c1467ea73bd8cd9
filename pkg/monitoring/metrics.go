// Package monitoring exposes Prometheus metrics and an aggregated health
// view for the poimap components.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Service name for metrics
	ServiceName = "poimap"
)

var (
	// Dataset ingestion
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poimap_ingestions_total",
			Help: "Total number of dataset ingestions by result",
		},
		[]string{"result"},
	)

	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poimap_ingestion_duration_seconds",
			Help:    "Dataset fetch and ingestion duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
	)

	RowsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poimap_rows_rejected_total",
			Help: "Total number of dataset rows dropped during validation",
		},
	)

	CatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poimap_catalog_size",
			Help: "Number of location records in the current catalog",
		},
	)

	// Positioning
	FixRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poimap_fix_requests_total",
			Help: "Total number of completed fix requests by resulting state",
		},
		[]string{"state"},
	)

	// Viewport
	CameraMovesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poimap_camera_moves_total",
			Help: "Total number of camera move commands issued by kind",
		},
		[]string{"kind"},
	)

	// Tiles
	TileFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poimap_tile_failures_total",
			Help: "Total number of tile fetch failures",
		},
	)

	TileFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poimap_tile_fetch_duration_seconds",
			Help:    "Tile fetch duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"status"},
	)

	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poimap_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"service"},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poimap_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poimap_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// MCP tools
	MCPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poimap_mcp_requests_total",
			Help: "Total number of MCP tool calls processed",
		},
		[]string{"tool", "status"},
	)

	MCPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poimap_mcp_request_duration_seconds",
			Help:    "MCP tool call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"tool"},
	)

	// System
	SystemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poimap_system_info",
			Help: "System information",
		},
		[]string{"version", "go_version", "build_commit", "build_date"},
	)

	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poimap_goroutines",
			Help: "Number of goroutines",
		},
	)

	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poimap_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)
)

// ServiceHealth is the JSON body served on /health.
type ServiceHealth struct {
	Service       string                `json:"service"`
	Version       string                `json:"version"`
	Status        string                `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime        time.Duration         `json:"uptime"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time,omitempty"`
	Components    map[string]ConnStatus `json:"components"`
	Metrics       map[string]any        `json:"metrics,omitempty"`
}

// ConnStatus is the last reported state of one component.
type ConnStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "connected", "degraded", "error", "disconnected"
	Latency   int64  `json:"latency_ms,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordIngestion records one dataset ingestion attempt.
func RecordIngestion(duration time.Duration, accepted, rejected int, err error) {
	IngestionDuration.Observe(duration.Seconds())
	if err != nil {
		IngestionsTotal.WithLabelValues("error").Inc()
		return
	}
	IngestionsTotal.WithLabelValues("success").Inc()
	RowsRejectedTotal.Add(float64(rejected))
	CatalogSize.Set(float64(accepted))
}

// RecordFix records the state a fix request settled in.
func RecordFix(state string) {
	FixRequestsTotal.WithLabelValues(state).Inc()
}

// RecordCameraMove records a camera command by kind ("direct", "intermediate", "final", "reassert").
func RecordCameraMove(kind string) {
	CameraMovesTotal.WithLabelValues(kind).Inc()
}

// RecordTileFetch records a tile fetch outcome.
func RecordTileFetch(duration time.Duration, success bool) {
	TileFetchDuration.WithLabelValues(statusLabel(success)).Observe(duration.Seconds())
	if !success {
		TileFailuresTotal.Inc()
	}
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordMCPRequest records a tool call.
func RecordMCPRequest(tool string, duration time.Duration, success bool) {
	MCPRequestsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	MCPRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
