// Package router implements the request classification state machine: it
// decides whether an incoming request is a managed (cached) distro fetch, a
// passthrough proxy request, a CONNECT tunnel, or unroutable.
package router

import (
	"fmt"
	"net/http"
	"strings"

	logger "github.com/soulteary/logger-kit"
	"github.com/soulteary/tracing-kit"

	"github.com/distrocache/distrocache/internal/cacheengine"
	"github.com/distrocache/distrocache/internal/metrics"
	"github.com/distrocache/distrocache/internal/mirrors"
	"github.com/distrocache/distrocache/internal/stats"
	"github.com/distrocache/distrocache/internal/tunnel"
)

// Router dispatches incoming proxy requests to the cache engine, the
// CONNECT tunnel, or a direct passthrough fetch.
type Router struct {
	Mirrors         *mirrors.Registry
	Cache           *cacheengine.Engine
	Stats           *stats.Stats
	Tunnel          *tunnel.Tunnel
	PassthroughMode bool
	Log             *logger.Logger
	Metrics         *metrics.Recorder

	client *http.Client
}

// New constructs a Router.
func New(reg *mirrors.Registry, cache *cacheengine.Engine, st *stats.Stats, tun *tunnel.Tunnel, passthroughMode bool, log *logger.Logger, rec *metrics.Recorder) *Router {
	return &Router{
		Mirrors:         reg,
		Cache:           cache,
		Stats:           st,
		Tunnel:          tun,
		PassthroughMode: passthroughMode,
		Log:             log,
		Metrics:         rec,
		client:          &http.Client{Timeout: cacheengine.UpstreamTimeout},
	}
}

// ServeHTTP implements the full request classification state machine.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "router.dispatch")
	defer span.End()
	tracing.SetSpanAttributesFromMap(span, map[string]string{
		"http.method": r.Method,
		"http.target": r.URL.Path,
	})
	r = r.WithContext(ctx)

	if r.Method == http.MethodConnect {
		tracing.SetSpanStatus(span, true, "connect")
		rt.Tunnel.Handle(w, r)
		return
	}

	requestPath := requestTargetPath(r)
	distro, packagePath, ok := splitManagedPath(requestPath)

	if ok {
		upstreamKey := rt.Mirrors.PickUpstreamKey(distro, packagePath)
		approved := rt.Mirrors.GetApproved()

		if key, managed := resolveManagedKey(approved, upstreamKey, distro); managed {
			tracing.SetSpanStatus(span, true, "managed")
			rt.serveManaged(w, r, distro, key, packagePath, approved[key].URLs)
			return
		}
	}

	if rt.PassthroughMode && r.URL.IsAbs() {
		tracing.SetSpanStatus(span, true, "passthrough")
		rt.servePassthrough(w, r)
		return
	}

	tracing.SetSpanStatus(span, false, "unroutable")
	http.NotFound(w, r)
}

// resolveManagedKey implements the tie-break: upstreamKey (e.g. the
// "-security" variant) wins over the bare distro name whenever both are
// approved.
func resolveManagedKey(approved map[string]*mirrors.Mirror, upstreamKey, distro string) (string, bool) {
	if m, ok := approved[upstreamKey]; ok && m.Status == mirrors.StatusApproved {
		return upstreamKey, true
	}
	if m, ok := approved[distro]; ok && m.Status == mirrors.StatusApproved {
		return distro, true
	}
	return "", false
}

func (rt *Router) serveManaged(w http.ResponseWriter, r *http.Request, distro, upstreamKey, packagePath string, mirrorURLs []string) {
	rt.Stats.IncrementRequests()

	cachePath, err := rt.Cache.Path(distro, packagePath)
	if err != nil {
		if rt.Log != nil {
			rt.Log.Error().Err(err).Str("distro", distro).Msg("error deriving cache path")
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if rt.Cache.IsValid(cachePath) {
		rt.Stats.IncrementCacheHits()
		rt.Stats.AddLog(stats.LevelSuccess, "HIT: "+cachePath)
		rt.Metrics.RecordRequest(distro, "hit")
		if err := rt.Cache.ServeFromCache(w, r, cachePath); err != nil {
			if rt.Log != nil {
				rt.Log.Error().Err(err).Str("path", cachePath).Msg("error reading cache")
			}
			http.Error(w, "error reading cache", http.StatusInternalServerError)
		}
		return
	}

	rt.Stats.IncrementCacheMisses()
	rt.Stats.AddLog(stats.LevelInfo, fmt.Sprintf("MISS: %s -> %s", packagePath, upstreamKey))
	rt.Metrics.RecordRequest(distro, "miss")

	urls := make([]string, len(mirrorURLs))
	for i, base := range mirrorURLs {
		urls[i] = strings.TrimRight(base, "/") + "/" + packagePath
	}

	rt.Cache.StreamAndCache(r.Context(), w, r, distro, urls, cachePath)
}

// servePassthrough proxies an absolute-form request directly to its target
// host without caching. Unknown hosts are opportunistically learned as
// pending mirrors (never approved), per the dynamic-learning contract.
func (rt *Router) servePassthrough(w http.ResponseWriter, r *http.Request) {
	target := r.URL.String()

	host, err := mirrors.ParseHost(target)
	if err == nil {
		approved := rt.Mirrors.GetApproved()
		if _, known := approved[host]; !known {
			scheme := r.URL.Scheme
			if scheme == "" {
				scheme = "http"
			}
			if _, err := rt.Mirrors.Save(r.Context(), host, []string{scheme + "://" + host}); err != nil && rt.Log != nil {
				rt.Log.Warn().Str("host", host).Err(err).Msg("dynamic mirror learning declined")
			}
			rt.Stats.AddLog(stats.LevelWarning, "LEARN: "+host)
		}
	}
	rt.Metrics.RecordRequest("unmanaged", "passthrough")

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, "invalid target", http.StatusBadRequest)
		return
	}
	copyForwardHeaders(r.Header, req.Header)

	rt.Stats.AddLog(stats.LevelInfo, "PROXY: "+target)

	resp, err := rt.client.Do(req)
	if err != nil {
		if rt.Log != nil {
			rt.Log.Error().Err(err).Str("target", target).Msg("direct proxy error")
		}
		rt.Stats.AddLog(stats.LevelError, fmt.Sprintf("Proxy error for %s: %v", target, err))
		http.Error(w, fmt.Sprintf("proxy error: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		lower := strings.ToLower(key)
		if lower == "content-encoding" || lower == "content-length" || lower == "transfer-encoding" || lower == "connection" {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	buf := make([]byte, 64*1024)
	flusher, _ := w.(http.Flusher)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
			rt.Stats.AddBytesServed(int64(n))
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}

// requestTargetPath returns the path the router should classify: the
// request line's path stripped of scheme and host for absolute-form
// targets (the way an HTTP proxy receives them).
func requestTargetPath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}

// splitManagedPath splits a path into its leading distro segment and the
// remaining package path, requiring at least two segments.
func splitManagedPath(path string) (distro, packagePath string, ok bool) {
	path = strings.TrimPrefix(path, "/")
	idx := strings.Index(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

func copyForwardHeaders(src, dst http.Header) {
	for key, values := range src {
		if strings.EqualFold(key, "Host") {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
