package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/blacklist"
	"github.com/distrocache/distrocache/internal/cacheengine"
	"github.com/distrocache/distrocache/internal/stats"
	"github.com/distrocache/distrocache/internal/store"
)

func newTestCacheHandler(t *testing.T) (*CacheHandler, *cacheengine.Engine) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "distrocache.db.json")
	st, err := store.Open(dbPath, logger.Default())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	bl := blacklist.New(st)
	stt := stats.New(st, logger.Default())
	cache := cacheengine.New(t.TempDir(), 7, true, bl, stt, logger.Default(), nil)
	return NewCacheHandler(cache, stt), cache
}

func TestCacheHandlerSearchRequiresQuery(t *testing.T) {
	h, _ := newTestCacheHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cache/search", nil)
	w := httptest.NewRecorder()
	h.Search(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without q", w.Code)
	}
}

func TestCacheHandlerSearchFindsEntry(t *testing.T) {
	h, cache := newTestCacheHandler(t)

	p, err := cache.Path("debian", "dists/stable/InRelease")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cache/search?q=release", nil)
	w := httptest.NewRecorder()
	h.Search(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestCacheHandlerDownloadRejectsTraversal(t *testing.T) {
	h, _ := newTestCacheHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cache/download?path=../../etc/passwd", nil)
	w := httptest.NewRecorder()
	h.Download(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a traversal attempt", w.Code)
	}
}

func TestCacheHandlerDownloadServesFile(t *testing.T) {
	h, cache := newTestCacheHandler(t)

	p, err := cache.Path("debian", "dists/stable/InRelease")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if err := os.WriteFile(p, []byte("release-data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rel, err := filepath.Rel(cache.Root, p)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cache/download?path="+rel, nil)
	w := httptest.NewRecorder()
	h.Download(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "release-data" {
		t.Fatalf("body = %q, want release-data", w.Body.String())
	}
}

func TestCacheHandlerDeleteEntry(t *testing.T) {
	h, cache := newTestCacheHandler(t)

	p, err := cache.Path("debian", "dists/stable/InRelease")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rel, err := filepath.Rel(cache.Root, p)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/cache?path="+rel, nil)
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatal("file should be gone after Delete")
	}
}

func TestCacheHandlerCleanup(t *testing.T) {
	h, _ := newTestCacheHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/cleanup", nil)
	w := httptest.NewRecorder()
	h.Cleanup(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestCacheHandlerStatsResponse(t *testing.T) {
	h, _ := newTestCacheHandler(t)
	h.Stats.IncrementRequests()

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	h.StatsResponse(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
