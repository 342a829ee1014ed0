package background

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/blacklist"
	"github.com/distrocache/distrocache/internal/cacheengine"
	"github.com/distrocache/distrocache/internal/stats"
	"github.com/distrocache/distrocache/internal/store"
)

func newTestLoop(t *testing.T) (*Loop, string) {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "distrocache.db.json")

	st, err := store.Open(dbPath, logger.Default())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	bl := blacklist.New(st)
	stt := stats.New(st, logger.Default())
	cache := cacheengine.New(root, 7, true, bl, stt, logger.Default(), nil)

	return New(stt, cache, root, logger.Default(), nil), root
}

// TestRunPerformsInitialScanBeforeTicking verifies the loop's initial
// filesystem scan (spec.md §4.9: "performs one initial filesystem scan")
// happens synchronously before the periodic ticker schedule starts, so a
// caller cancelled almost immediately still observes it.
func TestRunPerformsInitialScanBeforeTicking(t *testing.T) {
	loop, root := newTestLoop(t)

	if err := os.MkdirAll(filepath.Join(root, "debian", "ab"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "debian", "ab", "ab_pkg.deb"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	// Cancel well before the first 10s tick fires; the initial scan runs
	// before the loop enters its select, so it must already be visible.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	snap := loop.Stats.FileStatsSnapshot()
	if snap.TotalFiles != 1 {
		t.Fatalf("TotalFiles = %d, want 1 after initial scan", snap.TotalFiles)
	}
	if snap.ByDistro["debian"] != 5 {
		t.Fatalf("ByDistro[debian] = %d, want 5", snap.ByDistro["debian"])
	}
}

// TestRunReturnsPromptlyOnCancel verifies the loop doesn't block past
// context cancellation waiting on its own ticker.
func TestRunReturnsPromptlyOnCancel(t *testing.T) {
	loop, _ := newTestLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return promptly for an already-cancelled context")
	}
}
