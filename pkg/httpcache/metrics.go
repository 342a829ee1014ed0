package httpcache

import (
	"github.com/prometheus/client_golang/prometheus"
	metrics "github.com/soulteary/metrics-kit"
)

// CacheMetrics holds the Prometheus metrics distrocache's request router,
// cache engine, and admin API actually record. See internal/metrics.Recorder
// for the narrowed call surface this backs.
type CacheMetrics struct {
	// CacheHits tracks the number of cache hits
	CacheHits *prometheus.CounterVec

	// CacheMisses tracks the number of cache misses
	CacheMisses *prometheus.CounterVec

	// CacheSizeBytes tracks the current cache size in bytes (gauge)
	CacheSizeBytes prometheus.Gauge

	// CacheItemCount tracks the current number of cached items (gauge)
	CacheItemCount prometheus.Gauge

	// UpstreamErrors tracks the number of upstream errors
	UpstreamErrors *prometheus.CounterVec

	// RequestsByDistro tracks total requests by distribution and status
	RequestsByDistro *prometheus.CounterVec

	// MirrorSwitches tracks mirror switch events
	MirrorSwitches *prometheus.CounterVec

	// BytesTransferred tracks total bytes transferred
	BytesTransferred *prometheus.CounterVec

	// AuthFailures tracks authentication failures
	AuthFailures *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics with the given registry
func NewCacheMetrics(registry *metrics.Registry) *CacheMetrics {
	cacheRegistry := registry.WithSubsystem("cache")

	return &CacheMetrics{
		CacheHits: cacheRegistry.Counter("hits_total").
			Help("Total number of cache hits").
			Labels("method").
			BuildVec(),

		CacheMisses: cacheRegistry.Counter("misses_total").
			Help("Total number of cache misses").
			Labels("method").
			BuildVec(),

		CacheSizeBytes: cacheRegistry.Gauge("size_bytes").
			Help("Current cache size in bytes").
			Build(),

		CacheItemCount: cacheRegistry.Gauge("item_count").
			Help("Current number of cached items").
			Build(),

		UpstreamErrors: cacheRegistry.Counter("upstream_errors_total").
			Help("Total number of upstream errors").
			Labels("error_type").
			BuildVec(),

		RequestsByDistro: cacheRegistry.Counter("requests_by_distro_total").
			Help("Total requests by distribution").
			Labels("distro", "status").
			BuildVec(),

		MirrorSwitches: cacheRegistry.Counter("mirror_switches_total").
			Help("Mirror switch events").
			Labels("distro", "from", "to").
			BuildVec(),

		BytesTransferred: cacheRegistry.Counter("bytes_transferred_total").
			Help("Total bytes transferred").
			Labels("direction", "distro").
			BuildVec(),

		AuthFailures: cacheRegistry.Counter("auth_failures_total").
			Help("Authentication failure counts").
			Labels("reason").
			BuildVec(),
	}
}

// RecordCacheHit records a cache hit
func (m *CacheMetrics) RecordCacheHit(method string) {
	if m != nil && m.CacheHits != nil {
		m.CacheHits.WithLabelValues(method).Inc()
	}
}

// RecordCacheMiss records a cache miss
func (m *CacheMetrics) RecordCacheMiss(method string) {
	if m != nil && m.CacheMisses != nil {
		m.CacheMisses.WithLabelValues(method).Inc()
	}
}

// RecordUpstreamError records an upstream error
func (m *CacheMetrics) RecordUpstreamError(errorType string) {
	if m != nil && m.UpstreamErrors != nil {
		m.UpstreamErrors.WithLabelValues(errorType).Inc()
	}
}

// SetCacheSize sets the current cache size in bytes
func (m *CacheMetrics) SetCacheSize(sizeBytes int64) {
	if m != nil && m.CacheSizeBytes != nil {
		m.CacheSizeBytes.Set(float64(sizeBytes))
	}
}

// SetCacheItemCount sets the current number of cached items
func (m *CacheMetrics) SetCacheItemCount(count int) {
	if m != nil && m.CacheItemCount != nil {
		m.CacheItemCount.Set(float64(count))
	}
}

// RecordRequestByDistro records a request for a specific distribution
func (m *CacheMetrics) RecordRequestByDistro(distro, status string) {
	if m != nil && m.RequestsByDistro != nil {
		m.RequestsByDistro.WithLabelValues(distro, status).Inc()
	}
}

// RecordMirrorSwitch records a mirror switch event
func (m *CacheMetrics) RecordMirrorSwitch(distro, fromMirror, toMirror string) {
	if m != nil && m.MirrorSwitches != nil {
		m.MirrorSwitches.WithLabelValues(distro, fromMirror, toMirror).Inc()
	}
}

// RecordBytesTransferred records bytes transferred
func (m *CacheMetrics) RecordBytesTransferred(direction, distro string, bytes int64) {
	if m != nil && m.BytesTransferred != nil {
		m.BytesTransferred.WithLabelValues(direction, distro).Add(float64(bytes))
	}
}

// RecordAuthFailure records an authentication failure
func (m *CacheMetrics) RecordAuthFailure(reason string) {
	if m != nil && m.AuthFailures != nil {
		m.AuthFailures.WithLabelValues(reason).Inc()
	}
}
