package stats

import (
	"os"
	"path/filepath"
	"testing"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/store"
)

func newTestStats(t *testing.T) *Stats {
	t.Helper()
	path := filepath.Join(t.TempDir(), "distrocache.db.json")
	st, err := store.Open(path, logger.Default())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return New(st, logger.Default())
}

func TestCountersAndSnapshot(t *testing.T) {
	s := newTestStats(t)

	s.IncrementRequests()
	s.IncrementRequests()
	s.IncrementCacheHits()
	s.IncrementCacheMisses()
	s.AddBytesServed(1024)

	snap := s.Snapshot()
	if snap.RequestsTotal != 2 {
		t.Errorf("RequestsTotal = %d, want 2", snap.RequestsTotal)
	}
	if snap.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", snap.CacheHits)
	}
	if snap.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", snap.CacheMisses)
	}
	if snap.BytesServed != 1024 {
		t.Errorf("BytesServed = %d, want 1024", snap.BytesServed)
	}
}

func TestFlushPersistsCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distrocache.db.json")
	st, err := store.Open(path, logger.Default())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	s := New(st, logger.Default())
	s.IncrementRequests()
	s.IncrementCacheHits()

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reopened, err := store.Open(path, logger.Default())
	if err != nil {
		t.Fatalf("store.Open (reopen): %v", err)
	}
	s2 := New(reopened, logger.Default())
	snap := s2.Snapshot()
	if snap.RequestsTotal != 1 || snap.CacheHits != 1 {
		t.Fatalf("restored snapshot = %+v, want RequestsTotal=1 CacheHits=1", snap)
	}
}

func TestAddBytesServedFlushesPastThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distrocache.db.json")
	st, err := store.Open(path, logger.Default())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	s := New(st, logger.Default())

	s.AddBytesServed(flushByteThreshold + 1)

	reopened, err := store.Open(path, logger.Default())
	if err != nil {
		t.Fatalf("store.Open (reopen): %v", err)
	}
	s2 := New(reopened, logger.Default())
	if s2.Snapshot().BytesServed != flushByteThreshold+1 {
		t.Fatal("expected threshold-triggered flush to persist bytes_served")
	}
}

func TestLogRingEvictsOldestBeyondCapacity(t *testing.T) {
	s := newTestStats(t)

	for i := 0; i < logRingCapacity+10; i++ {
		s.AddLog(LevelInfo, "entry")
	}

	entries := s.LogEntries()
	if len(entries) != logRingCapacity {
		t.Fatalf("LogEntries() length = %d, want %d", len(entries), logRingCapacity)
	}
}

func TestUptimeHHMMSSFormat(t *testing.T) {
	s := newTestStats(t)
	got := s.UptimeHHMMSS()
	if len(got) != 8 || got[2] != ':' || got[5] != ':' {
		t.Fatalf("UptimeHHMMSS() = %q, want HH:MM:SS shape", got)
	}
}

func TestUpdateFileStats(t *testing.T) {
	s := newTestStats(t)

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "debian", "ab"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "debian", "ab", "ab_pkg.deb"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "debian", "ab", "ab_pkg.deb.tmp"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("WriteFile tmp: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".hidden"), 0o755); err != nil {
		t.Fatalf("MkdirAll hidden: %v", err)
	}

	if err := s.UpdateFileStats(root); err != nil {
		t.Fatalf("UpdateFileStats: %v", err)
	}

	snap := s.FileStatsSnapshot()
	if snap.TotalFiles != 1 {
		t.Fatalf("TotalFiles = %d, want 1 (in-progress .tmp file must be excluded)", snap.TotalFiles)
	}
	if snap.TotalBytes != 5 {
		t.Fatalf("TotalBytes = %d, want 5", snap.TotalBytes)
	}
	if _, ok := snap.ByDistro[".hidden"]; ok {
		t.Fatal("hidden top-level directory should not be counted")
	}
	if snap.ByDistro["debian"] != 5 {
		t.Fatalf("ByDistro[debian] = %d, want 5", snap.ByDistro["debian"])
	}
}
