package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/pkg/jobs"
)

const metricsNamespace = "letter_workflow"

// MetricsService owns the Prometheus registry for the workflow and keeps
// plain counters alongside it for the JSON summary at /admin/metrics.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.HistogramVec
	cacheWrites     prometheus.Histogram
	queryDuration   *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	dispositions    prometheus.Counter
	exportJobs      *prometheus.CounterVec

	requests        atomic.Uint64
	requestNanos    atomic.Uint64
	cacheHits       atomic.Uint64
	cacheMisses     atomic.Uint64
	queries         atomic.Uint64
	queryNanos      atomic.Uint64
	transitionCount atomic.Uint64
	completedCount  atomic.Uint64
	exportsFinished atomic.Uint64
	exportsFailed   atomic.Uint64

	mu     sync.RWMutex
	queues map[string]func() jobs.Stats
}

// NewMetricsService registers the workflow collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	m := &MetricsService{
		registry: registry,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		queues:   map[string]func() jobs.Stats{},
	}

	m.requestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route template and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	m.cacheLookups = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "directory_cache_lookup_seconds",
		Help:      "Directory cache lookup latency by outcome.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"result"})
	m.cacheWrites = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "directory_cache_write_seconds",
		Help:      "Directory cache write latency.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})
	m.queryDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "db_query_duration_seconds",
		Help:      "Latency of instrumented database reads.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"query"})
	m.transitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "letter_transitions_total",
		Help:      "Committed letter request transitions by tracking action and resulting status.",
	}, []string{"action", "status"})
	m.dispositions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "disposition_assignments_completed_total",
		Help:      "Disposition assignments completed by officers.",
	})
	m.exportJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "tracking_export_jobs_total",
		Help:      "Tracking export jobs by final status.",
	}, []string{"status"})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "directory_cache_hit_ratio",
		Help:      "Share of directory cache lookups served from Redis.",
	}, m.cacheHitRatio)
	registry.MustRegister(collectors.NewGoCollector())

	return m
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

// RegisterQueue exports a job queue's depth and counters as gauges.
func (m *MetricsService) RegisterQueue(name string, stats func() jobs.Stats) {
	if m == nil || stats == nil {
		return
	}
	m.mu.Lock()
	m.queues[name] = stats
	m.mu.Unlock()

	labels := prometheus.Labels{"queue": name}
	gauge := func(metric, help string, read func(jobs.Stats) float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "queue",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return read(stats()) }))
	}
	gauge("pending_jobs", "Jobs waiting for a worker.", func(s jobs.Stats) float64 { return float64(s.Pending) })
	gauge("processed_jobs", "Jobs handled successfully.", func(s jobs.Stats) float64 { return float64(s.Processed) })
	gauge("failed_jobs", "Jobs that exhausted their retries.", func(s jobs.Stats) float64 { return float64(s.Failed) })
	gauge("dropped_jobs", "Jobs rejected because the buffer was full.", func(s jobs.Stats) float64 { return float64(s.Dropped) })
}

// ObserveHTTPRequest records one served request under its route template.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
	m.requests.Add(1)
	m.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a directory cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
	m.cacheLookups.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrites.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.queries.Add(1)
	m.queryNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordTransition counts a committed status transition.
func (m *MetricsService) RecordTransition(action models.TrackingAction, status models.LetterStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(action), string(status)).Inc()
	m.transitionCount.Add(1)
}

// RecordDispositionCompleted counts an officer finishing an assignment.
func (m *MetricsService) RecordDispositionCompleted() {
	if m == nil {
		return
	}
	m.dispositions.Inc()
	m.completedCount.Add(1)
}

// RecordExportJob counts an export job reaching a final status.
func (m *MetricsService) RecordExportJob(status models.ExportStatus) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(string(status)).Inc()
	switch status {
	case models.ExportStatusFinished:
		m.exportsFinished.Add(1)
	case models.ExportStatusFailed:
		m.exportsFailed.Add(1)
	}
}

func (m *MetricsService) cacheHitRatio() float64 {
	hits, misses := m.cacheHits.Load(), m.cacheMisses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func averageMs(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}

// Snapshot returns aggregated metrics for the admin summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := m.requests.Load()
	queries := m.queries.Load()

	snapshot := models.SystemMetrics{
		CacheHitRatio:            m.cacheHitRatio(),
		CacheHits:                m.cacheHits.Load(),
		CacheMisses:              m.cacheMisses.Load(),
		RequestsTotal:            requests,
		AverageRequestDurationMs: averageMs(m.requestNanos.Load(), requests),
		DBQueryCount:             queries,
		AverageDBQueryDurationMs: averageMs(m.queryNanos.Load(), queries),
		LetterTransitions:        m.transitionCount.Load(),
		DispositionsCompleted:    m.completedCount.Load(),
		ExportsFinished:          m.exportsFinished.Load(),
		ExportsFailed:            m.exportsFailed.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.queues) > 0 {
		snapshot.Queues = make(map[string]models.QueueMetrics, len(m.queues))
		for name, stats := range m.queues {
			s := stats()
			snapshot.Queues[name] = models.QueueMetrics{Pending: s.Pending, Processed: s.Processed, Failed: s.Failed, Dropped: s.Dropped}
		}
	}
	return snapshot
}
