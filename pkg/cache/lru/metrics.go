package lru

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector implements cache.EvictionMetricsCollector, publishing
// evictions as a Prometheus counter labeled by cache name so the dedup
// fingerprint cache and the feedback lookup cache can be told apart on one
// dashboard.
type MetricsCollector struct {
	totalEvicts *prometheus.CounterVec
}

// NewMetricsCollector registers a counter vector under namespace/subsystem.
// Panics if called twice with the same namespace/subsystem against the same
// registerer, the same way prometheus.MustRegister always does.
func NewMetricsCollector(reg prometheus.Registerer, namespace, subsystem string) *MetricsCollector {
	totalEvicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "evictions_total",
		Help:      "Total number of cache evictions.",
	}, []string{"cache_name"})
	reg.MustRegister(totalEvicts)
	return &MetricsCollector{totalEvicts: totalEvicts}
}

// RecordEviction increments the eviction counter for cacheName.
func (c *MetricsCollector) RecordEviction(cacheName string) {
	c.totalEvicts.WithLabelValues(cacheName).Inc()
}
