package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/blacklist"
	"github.com/distrocache/distrocache/internal/cacheengine"
	"github.com/distrocache/distrocache/internal/mirrors"
	"github.com/distrocache/distrocache/internal/stats"
	"github.com/distrocache/distrocache/internal/store"
	"github.com/distrocache/distrocache/internal/tunnel"
)

func newTestRouter(t *testing.T, passthrough bool) *Router {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "distrocache.db.json")
	st, err := store.Open(dbPath, logger.Default())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	reg, err := mirrors.New(st, "cache.example.com", logger.Default())
	if err != nil {
		t.Fatalf("mirrors.New: %v", err)
	}
	bl := blacklist.New(st)
	stt := stats.New(st, logger.Default())
	cache := cacheengine.New(t.TempDir(), 7, true, bl, stt, logger.Default(), nil)
	tun := tunnel.New(stt, logger.Default(), nil)
	return New(reg, cache, stt, tun, passthrough, logger.Default(), nil)
}

func TestSplitManagedPath(t *testing.T) {
	distro, pkg, ok := splitManagedPath("debian/dists/stable/InRelease")
	if !ok || distro != "debian" || pkg != "dists/stable/InRelease" {
		t.Fatalf("splitManagedPath = (%q, %q, %v), want (debian, dists/stable/InRelease, true)", distro, pkg, ok)
	}

	if _, _, ok := splitManagedPath("debian"); ok {
		t.Fatal("single-segment path should not be a managed path")
	}
	if _, _, ok := splitManagedPath("debian/"); ok {
		t.Fatal("path with empty package segment should not be managed")
	}
	if _, _, ok := splitManagedPath(""); ok {
		t.Fatal("empty path should not be managed")
	}
}

func TestResolveManagedKeyPrefersUpstreamVariant(t *testing.T) {
	approved := map[string]*mirrors.Mirror{
		"debian":          {Name: "debian", Status: mirrors.StatusApproved},
		"debian-security": {Name: "debian-security", Status: mirrors.StatusApproved},
	}
	key, ok := resolveManagedKey(approved, "debian-security", "debian")
	if !ok || key != "debian-security" {
		t.Fatalf("resolveManagedKey = (%q, %v), want (debian-security, true)", key, ok)
	}
}

func TestResolveManagedKeyFallsBackToDistro(t *testing.T) {
	approved := map[string]*mirrors.Mirror{
		"debian": {Name: "debian", Status: mirrors.StatusApproved},
	}
	key, ok := resolveManagedKey(approved, "debian-security", "debian")
	if !ok || key != "debian" {
		t.Fatalf("resolveManagedKey = (%q, %v), want (debian, true)", key, ok)
	}
}

func TestResolveManagedKeyUnapproved(t *testing.T) {
	approved := map[string]*mirrors.Mirror{}
	if _, ok := resolveManagedKey(approved, "debian-security", "debian"); ok {
		t.Fatal("resolveManagedKey should fail when nothing is approved")
	}
}

func TestServeHTTPManagedCacheMiss(t *testing.T) {
	rt := newTestRouter(t, false)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("release-data"))
	}))
	defer upstream.Close()

	if _, err := rt.Mirrors.Save(context.Background(), "debian", []string{upstream.URL}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := rt.Mirrors.Update(context.Background(), "debian", nil, mirrors.StatusApproved); err != nil {
		t.Fatalf("Update: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debian/dists/stable/InRelease", nil)
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "release-data" {
		t.Fatalf("body = %q, want release-data", w.Body.String())
	}
}

func TestServeHTTPUnroutableWithoutPassthrough(t *testing.T) {
	rt := newTestRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/unknown-thing", nil)
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for an unmanaged single-segment path", w.Code)
	}
}

func TestServeHTTPPassthroughRequiresAbsoluteURL(t *testing.T) {
	rt := newTestRouter(t, true)

	req := httptest.NewRequest(http.MethodGet, "/relative/path/only", nil)
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for a relative-form request even with passthrough enabled", w.Code)
	}
}

func TestCopyForwardHeadersSkipsHost(t *testing.T) {
	src := http.Header{}
	src.Set("Host", "example.com")
	src.Set("X-Custom", "value")
	dst := http.Header{}

	copyForwardHeaders(src, dst)

	if dst.Get("Host") != "" {
		t.Fatal("Host header must not be forwarded")
	}
	if dst.Get("X-Custom") != "value" {
		t.Fatal("non-Host headers must be forwarded")
	}
}
