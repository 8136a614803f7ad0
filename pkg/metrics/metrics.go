// Package metrics exposes the scan substrate's internal events — rate
// limiter adjustments and backoff, resource monitor pressure transitions,
// worker pool throughput and retries — as Prometheus collectors, mirroring
// the teacher's own promauto-based metrics packages.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for every metric this package registers.
	Namespace = "secscan"

	subsystemRateLimit = "rate_limiter"
	subsystemResource  = "resource_monitor"
	subsystemWorkers   = "worker_pool"
	subsystemDedup     = "dedup"
)

// RateLimiter collects token-bucket adjustment and backoff events.
type RateLimiter struct {
	adjustments   *prometheus.CounterVec
	backoffEvents *prometheus.CounterVec
	backoffDelay  *prometheus.HistogramVec
	rejected      *prometheus.CounterVec
}

// NewRateLimiter registers the rate-limiter metric family.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		adjustments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemRateLimit,
			Name:      "adjustments_total",
			Help:      "Total number of adaptive rate adjustments, labeled by target and direction.",
		}, []string{"target", "direction"}),
		backoffEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemRateLimit,
			Name:      "backoff_events_total",
			Help:      "Total number of backoff activations, labeled by target.",
		}, []string{"target"}),
		backoffDelay: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemRateLimit,
			Name:      "backoff_delay_seconds",
			Help:      "Computed backoff delay in seconds, labeled by target.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"target"}),
		rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemRateLimit,
			Name:      "rejected_total",
			Help:      "Total number of requests denied by the token bucket, labeled by target and reason.",
		}, []string{"target", "reason"}),
	}
}

// RecordAdjustment reports an adaptive rate change for target; direction is
// "increase" or "decrease".
func (r *RateLimiter) RecordAdjustment(target, direction string) {
	r.adjustments.WithLabelValues(target, direction).Inc()
}

// RecordBackoff reports a backoff activation and its computed delay for target.
func (r *RateLimiter) RecordBackoff(target string, delaySeconds float64) {
	r.backoffEvents.WithLabelValues(target).Inc()
	r.backoffDelay.WithLabelValues(target).Observe(delaySeconds)
}

// RecordRejection reports a denied request for target with the given reason.
func (r *RateLimiter) RecordRejection(target, reason string) {
	r.rejected.WithLabelValues(target, reason).Inc()
}

// Resource collects resource-monitor pressure-level transitions and
// concurrent-stream usage.
type Resource struct {
	levelTransitions *prometheus.CounterVec
	currentLevel     prometheus.Gauge
	rssBytes         prometheus.Gauge
	openStreams      prometheus.Gauge
}

// NewResource registers the resource-monitor metric family.
func NewResource() *Resource {
	return &Resource{
		levelTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemResource,
			Name:      "level_transitions_total",
			Help:      "Total number of pressure-level transitions, labeled by the level transitioned to.",
		}, []string{"level"}),
		currentLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemResource,
			Name:      "current_level",
			Help:      "Current resource pressure level as an ordinal (0=normal, 1=warning, 2=critical, 3=emergency).",
		}),
		rssBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemResource,
			Name:      "rss_bytes",
			Help:      "Most recently sampled process RSS in bytes.",
		}),
		openStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemResource,
			Name:      "open_streams",
			Help:      "Current number of open concurrent file streams.",
		}),
	}
}

// RecordSample publishes one resource.Sample's readings. level is the
// sample's ordinal Level and levelName its String() form.
func (r *Resource) RecordSample(level int, levelName string, rssBytes int64, openStreams int, transitioned bool) {
	r.currentLevel.Set(float64(level))
	r.rssBytes.Set(float64(rssBytes))
	r.openStreams.Set(float64(openStreams))
	if transitioned {
		r.levelTransitions.WithLabelValues(levelName).Inc()
	}
}

// WorkerPool collects worker-pool throughput and retry counts.
type WorkerPool struct {
	filesScanned   prometheus.Counter
	filesRetried   *prometheus.CounterVec
	filesExhausted prometheus.Counter
	sequentialFallbacks prometheus.Counter
	scanDuration   prometheus.Histogram
}

// NewWorkerPool registers the worker-pool metric family.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{
		filesScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorkers,
			Name:      "files_scanned_total",
			Help:      "Total number of files successfully scanned.",
		}),
		filesRetried: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorkers,
			Name:      "files_retried_total",
			Help:      "Total number of per-file read retries, labeled by attempt number.",
		}, []string{"attempt"}),
		filesExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorkers,
			Name:      "files_retry_exhausted_total",
			Help:      "Total number of files that exhausted all retries.",
		}),
		sequentialFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorkers,
			Name:      "sequential_fallbacks_total",
			Help:      "Total number of times the pool dropped to sequential scanning under memory pressure.",
		}),
		scanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorkers,
			Name:      "file_scan_duration_seconds",
			Help:      "Per-file scan duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (w *WorkerPool) RecordScanned(durationSeconds float64) {
	w.filesScanned.Inc()
	w.scanDuration.Observe(durationSeconds)
}

func (w *WorkerPool) RecordRetry(attempt int) {
	w.filesRetried.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

func (w *WorkerPool) RecordExhausted() { w.filesExhausted.Inc() }

func (w *WorkerPool) RecordSequentialFallback() { w.sequentialFallbacks.Inc() }

// Dedup collects deduplication engine outcomes.
type Dedup struct {
	duplicatesRemoved prometheus.Histogram
	fallbacks         *prometheus.CounterVec
}

// NewDedup registers the deduplication metric family.
func NewDedup() *Dedup {
	return &Dedup{
		duplicatesRemoved: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemDedup,
			Name:      "duplicates_removed",
			Help:      "Number of duplicate findings removed per scan.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemDedup,
			Name:      "fallbacks_total",
			Help:      "Total number of deduplication fallbacks, labeled by reason.",
		}, []string{"reason"}),
	}
}

func (d *Dedup) RecordStats(duplicatesRemoved int, fallback bool, reason string) {
	d.duplicatesRemoved.Observe(float64(duplicatesRemoved))
	if fallback {
		d.fallbacks.WithLabelValues(reason).Inc()
	}
}
