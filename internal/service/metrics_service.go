package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/assessment-archive/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the archive pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	archiveRuns     *prometheus.CounterVec
	archiveDuration *prometheus.HistogramVec
	notaryDuration  *prometheus.HistogramVec
	dedupDecisions  *prometheus.CounterVec
	jobsClaimed     prometheus.Counter
	janitorRemoved  prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
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
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	archiveRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assessment_archive_runs_total",
		Help: "Archival runs by reason and outcome",
	}, []string{"reason", "outcome"})

	archiveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assessment_archive_run_duration_seconds",
		Help:    "Duration of archival runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"outcome"})

	notaryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assessment_archive_notary_duration_seconds",
		Help:    "Round trip time to the time stamping authority",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"outcome"})

	dedupDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assessment_archive_schedule_decisions_total",
		Help: "Scheduling decisions taken for trigger events",
	}, []string{"decision"})

	jobsClaimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assessment_archive_jobs_claimed_total",
		Help: "Jobs claimed by the dispatcher",
	})

	janitorRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assessment_archive_janitor_removed_files_total",
		Help: "Leftover files removed by the janitor",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		archiveRuns, archiveDuration, notaryDuration, dedupDecisions, jobsClaimed, janitorRemoved, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		archiveRuns:     archiveRuns,
		archiveDuration: archiveDuration,
		notaryDuration:  notaryDuration,
		dedupDecisions:  dedupDecisions,
		jobsClaimed:     jobsClaimed,
		janitorRemoved:  janitorRemoved,
	}
}

// Registry exposes the underlying registry (used by tests).
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveArchiveRun records the outcome of one publish attempt.
func (m *MetricsService) ObserveArchiveRun(reason models.ArchiveReason, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeLabel(success)
	m.archiveRuns.WithLabelValues(reason.String(), outcome).Inc()
	m.archiveDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveNotary records the round trip to the time stamping authority.
func (m *MetricsService) ObserveNotary(duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.notaryDuration.WithLabelValues(outcomeLabel(success)).Observe(duration.Seconds())
}

// RecordScheduleDecision counts scheduled, disabled and suppressed trigger events.
func (m *MetricsService) RecordScheduleDecision(decision string) {
	if m == nil {
		return
	}
	m.dedupDecisions.WithLabelValues(decision).Inc()
}

// AddJobsClaimed counts jobs handed to the worker pool.
func (m *MetricsService) AddJobsClaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsClaimed.Add(float64(n))
}

// AddJanitorRemoved counts files removed by the janitor.
func (m *MetricsService) AddJanitorRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.janitorRemoved.Add(float64(n))
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
