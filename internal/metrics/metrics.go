// Package metrics wires the cache engine's hit/miss/byte counters into
// Prometheus via metrics-kit.
package metrics

import (
	metricskit "github.com/soulteary/metrics-kit"

	"github.com/distrocache/distrocache/pkg/httpcache"
)

// Recorder narrows httpcache.CacheMetrics down to the calls the request
// router, cache engine, and tunnel actually make, so those packages can
// depend on this small wrapper instead of the full metrics-kit-backed struct
// (and tests can pass a nil *Recorder safely).
type Recorder struct {
	cache *httpcache.CacheMetrics
}

// New builds a Recorder registered under registry, ready to back every
// managed request the router classifies.
func New(registry *metricskit.Registry) *Recorder {
	return &Recorder{cache: httpcache.NewCacheMetrics(registry)}
}

// RecordRequest records one classified request outcome for a distro: "hit",
// "miss", "passthrough", or "tunnel".
func (r *Recorder) RecordRequest(distro, outcome string) {
	if r == nil {
		return
	}
	switch outcome {
	case "hit":
		r.cache.RecordCacheHit(distro)
	case "miss":
		r.cache.RecordCacheMiss(distro)
	}
	r.cache.RecordRequestByDistro(distro, outcome)
}

// RecordBytes records bytes flowing to the client for a distro ("served"
// for cache reads/writes, "tunnel" for CONNECT relay traffic).
func (r *Recorder) RecordBytes(direction, distro string, n int64) {
	if r == nil {
		return
	}
	r.cache.RecordBytesTransferred(direction, distro, n)
}

// RecordUpstreamOutcome records a single mirror attempt's disposition
// ("404", "timeout", "error", "success") for failover visibility.
func (r *Recorder) RecordUpstreamOutcome(errType string) {
	if r == nil {
		return
	}
	if errType == "success" {
		return
	}
	r.cache.RecordUpstreamError(errType)
}

// RecordMirrorSwitch records that a request fell back from one mirror to
// another within the same ordered failover attempt.
func (r *Recorder) RecordMirrorSwitch(distro, from, to string) {
	if r == nil {
		return
	}
	r.cache.RecordMirrorSwitch(distro, from, to)
}

// RecordAuthFailure records an admin API authentication rejection.
func (r *Recorder) RecordAuthFailure(reason string) {
	if r == nil {
		return
	}
	r.cache.RecordAuthFailure(reason)
}

// SetCacheUsage publishes the filesystem snapshot's gauges.
func (r *Recorder) SetCacheUsage(totalBytes int64, itemCount int) {
	if r == nil {
		return
	}
	r.cache.SetCacheSize(totalBytes)
	r.cache.SetCacheItemCount(itemCount)
}
