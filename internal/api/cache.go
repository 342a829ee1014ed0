package api

import (
	"net/http"
	"os"

	"github.com/distrocache/distrocache/internal/cacheengine"
	apperrors "github.com/distrocache/distrocache/internal/errors"
	"github.com/distrocache/distrocache/internal/stats"
	"github.com/distrocache/distrocache/pkg/system"
)

const labelNoValidValue = "N/A"

// CacheHandler serves the cache-facing admin/search/download/cleanup routes,
// working against cacheengine.Engine.
type CacheHandler struct {
	Cache *cacheengine.Engine
	Stats *stats.Stats
}

// NewCacheHandler constructs a CacheHandler.
func NewCacheHandler(cache *cacheengine.Engine, st *stats.Stats) *CacheHandler {
	return &CacheHandler{Cache: cache, Stats: st}
}

// searchEntryResponse is the wire shape for one /api/cache/search hit.
type searchEntryResponse struct {
	Name  string `json:"name"`
	Distro string `json:"distro"`
	Size  int64  `json:"size"`
	MTime string `json:"mtime"`
	ATime string `json:"atime"`
	Path  string `json:"path"`
}

// Search handles GET /api/cache/search?q=...
func (h *CacheHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		WriteAppError(w, apperrors.New(apperrors.ErrRequestInvalid, "q is required"))
		return
	}

	entries, err := h.Cache.Search(query)
	if err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrCacheRead, "searching cache", err))
		return
	}

	out := make([]searchEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = searchEntryResponse{
			Name:   e.Name,
			Distro: e.Distro,
			Size:   e.Size,
			MTime:  e.MTime.Format(timeLayout),
			ATime:  e.ATime.Format(timeLayout),
			Path:   e.Path,
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Download handles GET /api/cache/download?path=...
func (h *CacheHandler) Download(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")
	full, err := h.Cache.ResolvePath(relPath)
	if err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrRequestInvalid, "invalid path", err))
		return
	}

	f, err := os.Open(full)
	if err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrCacheRead, "opening cache entry", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrCacheRead, "stat cache entry", err))
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+cacheengine.LogicalFilename(full)+`"`)
	http.ServeContent(w, r, cacheengine.LogicalFilename(full), info.ModTime(), f)
}

// Delete handles DELETE /api/admin/cache?path=...
func (h *CacheHandler) Delete(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")
	if err := h.Cache.DeleteEntry(relPath); err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrCachePurge, "deleting cache entry", err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Cleanup handles POST /cleanup, running the retention sweep on demand.
func (h *CacheHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Cache.CleanOld()
	if err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrCacheCleanup, "running cleanup", err))
		return
	}
	WriteJSON(w, http.StatusOK, CacheCleanupResponse{Success: true, ItemsRemoved: removed, StaleEntriesRemoved: removed})
}

// StatsResponse handles GET /stats and GET /api/stats.
func (h *CacheHandler) StatsResponse(w http.ResponseWriter, r *http.Request) {
	snap := h.Stats.Snapshot()
	fileStats := h.Stats.FileStatsSnapshot()

	cacheSizeLabel := system.ByteCountDecimal(uint64(fileStats.TotalBytes))

	diskAvailableLabel := labelNoValidValue
	if available, err := system.DiskAvailable(); err == nil {
		diskAvailableLabel = system.ByteCountDecimal(available)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"requests_total":       snap.RequestsTotal,
		"cache_hits":           snap.CacheHits,
		"cache_misses":         snap.CacheMisses,
		"bytes_served":         snap.BytesServed,
		"uptime":               h.Stats.UptimeHHMMSS(),
		"file_stats":           fileStats,
		"cache_size_human":     cacheSizeLabel,
		"disk_available_human": diskAvailableLabel,
		"log":                  h.Stats.LogEntries(),
	})
}
