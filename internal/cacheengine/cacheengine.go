// Package cacheengine implements the content-addressed on-disk cache: path
// derivation, freshness checks, cache-hit serving, and the core
// fetch-through-mirrors-and-cache algorithm.
package cacheengine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/blacklist"
	"github.com/distrocache/distrocache/internal/metrics"
	"github.com/distrocache/distrocache/internal/stats"
	"github.com/distrocache/distrocache/pkg/httpclient"
)

// streamChunkSize is the buffer size used when relaying bytes between the
// upstream response, the client, and (when caching) the temp file.
const streamChunkSize = 64 * 1024

// UpstreamTimeout bounds a single streaming GET to an upstream mirror.
const UpstreamTimeout = 20 * time.Second

var excludedResponseHeaders = map[string]struct{}{
	"transfer-encoding": {},
	"connection":        {},
	"content-encoding":  {},
	"content-length":    {},
}

// Engine derives cache paths under Root, serves cache hits, and fetches
// misses through an ordered mirror list, caching the result when permitted.
type Engine struct {
	Root             string
	CacheDays        int
	RetentionEnabled bool

	blacklist *blacklist.List
	stats     *stats.Stats
	log       *logger.Logger
	metrics   *metrics.Recorder
	client    *http.Client
}

// New constructs a cache engine rooted at storageRoot.
func New(storageRoot string, cacheDays int, retentionEnabled bool, bl *blacklist.List, st *stats.Stats, log *logger.Logger, rec *metrics.Recorder) *Engine {
	return &Engine{
		Root:             storageRoot,
		CacheDays:        cacheDays,
		RetentionEnabled: retentionEnabled,
		blacklist:        bl,
		stats:            st,
		log:              log,
		metrics:          rec,
		client:           httpclient.New("cacheengine.fetch", UpstreamTimeout),
	}
}

// Path derives the on-disk cache path for a package under a distro,
// creating its parent directory if necessary. The filename is content
// addressed: STORAGE/<distro>/<h[0:2]>/<h>_<basename>, h = md5(packagePath).
func (e *Engine) Path(distro, packagePath string) (string, error) {
	sum := md5.Sum([]byte(packagePath))
	h := hex.EncodeToString(sum[:])

	base := filepath.Base(packagePath)
	if base == "" || base == "." || base == "/" {
		base = "index"
	}

	dir := filepath.Join(e.Root, distro, h[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}
	return filepath.Join(dir, h+"_"+base), nil
}

// LogicalFilename extracts the human-readable filename encoded in a cache
// path's basename (the text after the first underscore), used for blacklist
// matching instead of the hash-prefixed on-disk name.
func LogicalFilename(cachePath string) string {
	base := filepath.Base(cachePath)
	if idx := strings.Index(base, "_"); idx >= 0 {
		return base[idx+1:]
	}
	return base
}

// IsValid reports whether the cached file at path exists and, when
// retention is enabled, is still fresh: now - max(atime, mtime) < cacheDays.
func (e *Engine) IsValid(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !e.RetentionEnabled {
		return true
	}

	age := time.Since(lastAccessTime(info))
	return age < time.Duration(e.CacheDays)*24*time.Hour
}

// ServeFromCache streams a cached file to the client, honoring conditional
// GET headers and bumping bytes-served. Access time is refreshed on a
// best-effort basis so freshness tracking reflects real reads.
func (e *Engine) ServeFromCache(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	bumpAccessTime(path)

	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)

	if e.stats != nil {
		e.stats.AddBytesServed(info.Size())
	}
	return nil
}

// fetchResult captures what happened fetching a single mirror URL, used to
// build the final error when every mirror is exhausted.
type fetchResult struct {
	note string
}

// StreamAndCache is the core fetch-through-mirrors algorithm: it tries each
// URL in order, forwarding the upstream response to the client and, when
// permitted, committing it to cachePath via an atomic temp-file-then-rename.
func (e *Engine) StreamAndCache(ctx context.Context, w http.ResponseWriter, r *http.Request, distro string, urls []string, cachePath string) {
	logicalName := LogicalFilename(cachePath)

	shouldCache := true
	if e.blacklist != nil && e.blacklist.Matches(logicalName) {
		shouldCache = false
		if e.log != nil {
			e.log.Warn().Str("file", logicalName).Msg("file blacklisted, will not cache")
		}
		if e.stats != nil {
			e.stats.AddLog(stats.LevelWarning, "BLACKLISTED: "+logicalName)
		}
	}

	var lastErr string
	var lastURL string

	for i, url := range urls {
		result, handled := e.fetchOne(ctx, w, r, distro, url, cachePath, shouldCache)
		if handled {
			if i > 0 {
				e.metrics.RecordMirrorSwitch(distro, lastURL, url)
			}
			e.metrics.RecordUpstreamOutcome("success")
			return
		}
		lastErr = result.note
		lastURL = url
	}

	e.metrics.RecordUpstreamOutcome("exhausted")
	if e.stats != nil {
		e.stats.AddLog(stats.LevelError, fmt.Sprintf("FAILED: %s (%s)", filepath.Base(cachePath), lastErr))
	}
	http.Error(w, fmt.Sprintf("all upstream mirrors failed, last error: %s", lastErr), http.StatusBadGateway)
}

// fetchOne attempts a single mirror URL. It returns handled=true once a
// response has been fully written to w (200, 304 or 206); handled=false
// (transport error, timeout, 404 or any other status) means the caller
// should advance to the next mirror.
func (e *Engine) fetchOne(ctx context.Context, w http.ResponseWriter, r *http.Request, distro, url, cachePath string, shouldCache bool) (fetchResult, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{note: err.Error()}, false
	}
	copyForwardHeaders(r.Header, req.Header)

	if e.log != nil {
		e.log.Info().Str("url", url).Msg("fetching from upstream")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			if e.log != nil {
				e.log.Error().Err(err).Str("url", url).Msg("timeout fetching upstream")
			}
			e.metrics.RecordUpstreamOutcome("timeout")
			return fetchResult{note: "Timeout"}, false
		}
		if e.log != nil {
			e.log.Error().Err(err).Str("url", url).Msg("error fetching upstream")
		}
		e.metrics.RecordUpstreamOutcome("error")
		return fetchResult{note: err.Error()}, false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if e.log != nil {
			e.log.Warn().Str("url", url).Msg("file not found upstream")
		}
		e.metrics.RecordUpstreamOutcome("404")
		return fetchResult{note: "404 Not Found"}, false

	case resp.StatusCode == http.StatusNotModified:
		sanitizeHeaders(resp.Header, w.Header())
		w.WriteHeader(http.StatusNotModified)
		if e.stats != nil {
			e.stats.AddLog(stats.LevelSuccess, "HIT (304): "+filepath.Base(cachePath))
		}
		return fetchResult{}, true

	case resp.StatusCode == http.StatusPartialContent:
		sanitizeHeaders(resp.Header, w.Header())
		w.WriteHeader(http.StatusPartialContent)
		e.relay(w, distro, resp.Body)
		if e.stats != nil {
			e.stats.AddLog(stats.LevelWarning, "PARTIAL: "+filepath.Base(cachePath))
		}
		return fetchResult{}, true

	case resp.StatusCode == http.StatusOK:
		sanitizeHeaders(resp.Header, w.Header())
		w.WriteHeader(http.StatusOK)
		if shouldCache {
			e.streamToClientAndCache(w, distro, resp.Body, cachePath)
		} else {
			e.relay(w, distro, resp.Body)
		}
		return fetchResult{}, true

	default:
		if e.log != nil {
			e.log.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("upstream returned error status")
		}
		e.metrics.RecordUpstreamOutcome(fmt.Sprintf("http_%d", resp.StatusCode))
		return fetchResult{note: fmt.Sprintf("HTTP %d", resp.StatusCode)}, false
	}
}

// relay copies body to w in fixed-size chunks, tracking bytes served.
func (e *Engine) relay(w http.ResponseWriter, distro string, body io.Reader) {
	buf := make([]byte, streamChunkSize)
	flusher, _ := w.(http.Flusher)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
			if e.stats != nil {
				e.stats.AddBytesServed(int64(n))
			}
			e.metrics.RecordBytes("served", distro, int64(n))
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// streamToClientAndCache writes the response body to both the client and a
// temp file simultaneously, committing the temp file to cachePath via
// atomic rename on success. A read or write error unlinks the temp file and
// leaves the client with a best-effort truncated body.
func (e *Engine) streamToClientAndCache(w http.ResponseWriter, distro string, body io.Reader, cachePath string) {
	tmpPath := cachePath + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		if e.log != nil {
			e.log.Error().Err(err).Str("path", tmpPath).Msg("error creating cache temp file")
		}
		e.relay(w, distro, body)
		return
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, streamChunkSize)
	var writeErr error

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				writeErr = err
			}
			w.Write(buf[:n])
			if e.stats != nil {
				e.stats.AddBytesServed(int64(n))
			}
			e.metrics.RecordBytes("served", distro, int64(n))
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				writeErr = readErr
			}
			break
		}
		if writeErr != nil {
			break
		}
	}

	tmp.Close()

	if writeErr != nil {
		os.Remove(tmpPath)
		if e.log != nil {
			e.log.Error().Err(writeErr).Str("path", cachePath).Msg("error during caching")
		}
		if e.stats != nil {
			e.stats.AddLog(stats.LevelError, fmt.Sprintf("Error caching %s: %v", filepath.Base(cachePath), writeErr))
		}
		return
	}

	if err := os.Rename(tmpPath, cachePath); err != nil {
		os.Remove(tmpPath)
		if e.log != nil {
			e.log.Error().Err(err).Str("path", cachePath).Msg("error committing cache file")
		}
		return
	}

	if e.log != nil {
		e.log.Info().Str("path", cachePath).Msg("cached")
	}
	if e.stats != nil {
		e.stats.AddLog(stats.LevelSuccess, "CACHED: "+filepath.Base(cachePath))
	}
}

// CleanOld walks the storage tree removing files whose last access predates
// the retention window. Per-file errors are logged and do not abort the sweep.
func (e *Engine) CleanOld() (int, error) {
	if !e.RetentionEnabled {
		if e.log != nil {
			e.log.Info().Msg("cache retention disabled, skipping cleanup")
		}
		return 0, nil
	}

	cutoff := time.Now().Add(-time.Duration(e.CacheDays) * 24 * time.Hour)
	removed := 0

	err := filepath.Walk(e.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if e.log != nil {
				e.log.Error().Err(err).Str("path", path).Msg("error checking cache entry")
			}
			return nil
		}
		if info.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		if lastAccessTime(info).Before(cutoff) {
			if err := os.Remove(path); err != nil {
				if e.log != nil {
					e.log.Error().Err(err).Str("path", path).Msg("error removing stale cache entry")
				}
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	if removed > 0 && e.stats != nil {
		e.stats.AddLog(stats.LevelInfo, fmt.Sprintf("Cleanup: removed %d old files", removed))
	}
	return removed, nil
}

// searchResultLimit bounds how many hits Search returns to a single admin request.
const searchResultLimit = 100

// Entry describes one on-disk cache file for the admin search/download surface.
type Entry struct {
	Name  string
	Distro string
	Size  int64
	MTime time.Time
	ATime time.Time
	Path  string
}

// Search walks the storage tree looking for cached files whose logical
// filename contains query (case-insensitive), stopping once
// searchResultLimit hits are found.
func (e *Engine) Search(query string) ([]Entry, error) {
	lower := strings.ToLower(query)
	var hits []Entry

	err := filepath.Walk(e.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if len(hits) >= searchResultLimit {
			return filepath.SkipAll
		}
		if info.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		logical := LogicalFilename(path)
		if !strings.Contains(strings.ToLower(logical), lower) {
			return nil
		}

		rel, relErr := filepath.Rel(e.Root, path)
		if relErr != nil {
			rel = path
		}
		distro := rel
		if idx := strings.Index(rel, string(filepath.Separator)); idx >= 0 {
			distro = rel[:idx]
		}

		hits = append(hits, Entry{
			Name:   logical,
			Distro: distro,
			Size:   info.Size(),
			MTime:  info.ModTime(),
			ATime:  lastAccessTime(info),
			Path:   rel,
		})
		return nil
	})
	if err != nil {
		return hits, err
	}
	return hits, nil
}

// ResolvePath validates and resolves a relative path (as returned by
// Search, or supplied by an admin client) against Root, rejecting any
// attempt to escape the storage tree.
func (e *Engine) ResolvePath(relPath string) (string, error) {
	if relPath == "" || strings.Contains(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("invalid cache path %q", relPath)
	}
	return filepath.Join(e.Root, filepath.FromSlash(relPath)), nil
}

// DeleteEntry removes one cached file by its path relative to Root.
func (e *Engine) DeleteEntry(relPath string) error {
	full, err := e.ResolvePath(relPath)
	if err != nil {
		return err
	}
	return os.Remove(full)
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

func sanitizeHeaders(src http.Header, dst http.Header) {
	for key, values := range src {
		if _, excluded := excludedResponseHeaders[strings.ToLower(key)]; excluded {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	return errors.As(err, &t) && t.Timeout()
}
