package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	syncRuns        *prometheus.CounterVec
	syncRecords     *prometheus.CounterVec
	syncRollbacks   *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	historyFailures *prometheus.CounterVec

	requestCount        uint64
	runCount            uint64
	rollbackCount       uint64
	historyFailureCount uint64
	lastRunUnix         int64
}

// MetricsSnapshot is a point-in-time summary of the collectors.
type MetricsSnapshot struct {
	RequestsTotal   uint64     `json:"requests_total"`
	SyncRuns        uint64     `json:"sync_runs"`
	Rollbacks       uint64     `json:"rollbacks"`
	HistoryFailures uint64     `json:"history_failures"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	Goroutines      int        `json:"goroutines"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvas_sync_result_cache_latency_seconds",
		Help:    "Latency for sync result cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "canvas_sync_result_cache_hits_total",
		Help: "Total sync result cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "canvas_sync_result_cache_misses_total",
		Help: "Total sync result cache misses",
	})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_sync_runs_total",
		Help: "Sync runs by mode and outcome",
	}, []string{"mode", "outcome"})

	syncRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_sync_records_total",
		Help: "Synced records by entity and outcome",
	}, []string{"entity", "outcome"})

	syncRollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_sync_rollbacks_total",
		Help: "Sync transactions rolled back",
	}, []string{"mode"})

	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "canvas_sync_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	historyFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_sync_history_failures_total",
		Help: "History rows that could not be written",
	}, []string{"entity"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		syncRuns, syncRecords, syncRollbacks, syncDuration, historyFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		syncRuns:        syncRuns,
		syncRecords:     syncRecords,
		syncRollbacks:   syncRollbacks,
		syncDuration:    syncDuration,
		historyFailures: historyFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records a result cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveSyncRun records one finished run.
func (m *MetricsService) ObserveSyncRun(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(mode, outcome).Inc()
	m.syncDuration.WithLabelValues(mode).Observe(duration.Seconds())
	atomic.AddUint64(&m.runCount, 1)
	atomic.StoreInt64(&m.lastRunUnix, time.Now().Unix())
}

// RecordSyncRecords adds n records of entity with the given outcome.
func (m *MetricsService) RecordSyncRecords(entity, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncRecords.WithLabelValues(entity, outcome).Add(float64(n))
}

// RecordRollback counts a rolled back sync transaction.
func (m *MetricsService) RecordRollback(mode string) {
	if m == nil {
		return
	}
	m.syncRollbacks.WithLabelValues(mode).Inc()
	atomic.AddUint64(&m.rollbackCount, 1)
}

// RecordHistoryFailure counts a swallowed history write failure.
func (m *MetricsService) RecordHistoryFailure(entity string) {
	if m == nil {
		return
	}
	m.historyFailures.WithLabelValues(entity).Inc()
	atomic.AddUint64(&m.historyFailureCount, 1)
}

// Snapshot returns aggregated counters for the health endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	snap := MetricsSnapshot{
		RequestsTotal:   atomic.LoadUint64(&m.requestCount),
		SyncRuns:        atomic.LoadUint64(&m.runCount),
		Rollbacks:       atomic.LoadUint64(&m.rollbackCount),
		HistoryFailures: atomic.LoadUint64(&m.historyFailureCount),
		Goroutines:      runtime.NumGoroutine(),
		GeneratedAt:     time.Now().UTC(),
	}
	if last := atomic.LoadInt64(&m.lastRunUnix); last > 0 {
		at := time.Unix(last, 0).UTC()
		snap.LastRunAt = &at
	}
	return snap
}
