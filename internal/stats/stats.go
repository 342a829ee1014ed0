// Package stats tracks the process's request counters, a bounded activity
// log ring, and periodic filesystem usage snapshots.
package stats

import (
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/store"
	"github.com/distrocache/distrocache/pkg/vfs"
)

// flushByteThreshold is how many bytes served accumulate before a flush is
// triggered outside the normal periodic schedule. Replaces a brittle
// exact-modulo check with a simple accumulated-since-last-flush threshold.
const flushByteThreshold = 10 * 1024 * 1024

// Log levels recorded in the activity ring.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
	LevelSuccess = "SUCCESS"
)

// logRingCapacity bounds the in-memory activity log.
const logRingCapacity = 100

// LogEntry is one bounded-ring activity record.
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// FileStats is a derived snapshot of on-disk cache usage, aggregated per
// top-level storage directory (one entry per managed distro).
type FileStats struct {
	TotalBytes int64            `json:"total_bytes"`
	TotalFiles int64            `json:"total_files"`
	ByDistro   map[string]int64 `json:"by_distro"`
}

// Stats holds the process's monotone counters, activity log, and the most
// recent filesystem snapshot. StartTime is never persisted: it resets every
// process start, which is what makes uptime meaningful.
type Stats struct {
	requestsTotal    int64
	cacheHits        int64
	cacheMisses      int64
	bytesServed      int64
	bytesSinceFlush  int64
	StartTime        time.Time

	logMu   sync.Mutex
	logRing []LogEntry

	fileMu    sync.Mutex
	fileStats FileStats

	store *store.Store
	log   *logger.Logger
}

// New constructs a Stats instance, restoring counters persisted from a prior run.
func New(st *store.Store, log *logger.Logger) *Stats {
	s := &Stats{
		StartTime: time.Now(),
		store:     st,
		log:       log,
		fileStats: FileStats{ByDistro: make(map[string]int64)},
	}

	persisted := st.LoadStats()
	atomic.StoreInt64(&s.requestsTotal, persisted["requests_total"])
	atomic.StoreInt64(&s.cacheHits, persisted["cache_hits"])
	atomic.StoreInt64(&s.cacheMisses, persisted["cache_misses"])
	atomic.StoreInt64(&s.bytesServed, persisted["bytes_served"])
	return s
}

// IncrementRequests increments the total request counter.
func (s *Stats) IncrementRequests() {
	atomic.AddInt64(&s.requestsTotal, 1)
}

// IncrementCacheHits increments the cache hit counter.
func (s *Stats) IncrementCacheHits() {
	atomic.AddInt64(&s.cacheHits, 1)
}

// IncrementCacheMisses increments the cache miss counter.
func (s *Stats) IncrementCacheMisses() {
	atomic.AddInt64(&s.cacheMisses, 1)
}

// AddBytesServed adds n bytes to the served-bytes counter. Crossing the
// flush threshold since the last flush triggers an immediate, out-of-band
// flush so long-running transfers don't leave counters stale for minutes.
func (s *Stats) AddBytesServed(n int64) {
	atomic.AddInt64(&s.bytesServed, n)
	if atomic.AddInt64(&s.bytesSinceFlush, n) >= flushByteThreshold {
		atomic.StoreInt64(&s.bytesSinceFlush, 0)
		if err := s.Flush(); err != nil && s.log != nil {
			s.log.Warn().Err(err).Msg("threshold-triggered stats flush failed")
		}
	}
}

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	RequestsTotal int64
	CacheHits     int64
	CacheMisses   int64
	BytesServed   int64
	UptimeSeconds int64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RequestsTotal: atomic.LoadInt64(&s.requestsTotal),
		CacheHits:     atomic.LoadInt64(&s.cacheHits),
		CacheMisses:   atomic.LoadInt64(&s.cacheMisses),
		BytesServed:   atomic.LoadInt64(&s.bytesServed),
		UptimeSeconds: int64(time.Since(s.StartTime).Seconds()),
	}
}

// UptimeHHMMSS formats the process uptime as HH:MM:SS.
func (s *Stats) UptimeHHMMSS() string {
	d := time.Since(s.StartTime)
	total := int64(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return padClock(h) + ":" + padClock(m) + ":" + padClock(sec)
}

func padClock(v int64) string {
	if v < 10 {
		return "0" + itoa(v)
	}
	return itoa(v)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Flush persists the current counters to the store.
func (s *Stats) Flush() error {
	return s.store.SaveStats(map[string]int64{
		"requests_total": atomic.LoadInt64(&s.requestsTotal),
		"cache_hits":     atomic.LoadInt64(&s.cacheHits),
		"cache_misses":   atomic.LoadInt64(&s.cacheMisses),
		"bytes_served":   atomic.LoadInt64(&s.bytesServed),
	})
}

// AddLog appends an entry to the bounded activity ring, evicting the oldest
// entry once the ring is full.
func (s *Stats) AddLog(level, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Level:   level,
		Message: message,
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	s.logRing = append(s.logRing, entry)
	if len(s.logRing) > logRingCapacity {
		s.logRing = s.logRing[len(s.logRing)-logRingCapacity:]
	}
}

// LogEntries returns a copy of the current activity ring, oldest first.
func (s *Stats) LogEntries() []LogEntry {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	out := make([]LogEntry, len(s.logRing))
	copy(out, s.logRing)
	return out
}

// FileStatsSnapshot returns the most recent filesystem usage snapshot.
func (s *Stats) FileStatsSnapshot() FileStats {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	byDistro := make(map[string]int64, len(s.fileStats.ByDistro))
	for k, v := range s.fileStats.ByDistro {
		byDistro[k] = v
	}
	return FileStats{
		TotalBytes: s.fileStats.TotalBytes,
		TotalFiles: s.fileStats.TotalFiles,
		ByDistro:   byDistro,
	}
}

// UpdateFileStats walks storageRoot once, aggregating total size and file
// count per top-level directory (one per managed distro). Hidden entries
// (dotfiles, dot-directories) are ignored, including the root itself. The
// walk goes through the read-only io/fs view over pkg/vfs's OS-backed
// filesystem, so the same aggregation logic runs unchanged against the
// in-memory filesystem in tests.
func (s *Stats) UpdateFileStats(storageRoot string) error {
	rofs := vfs.AsReadOnlyFS(vfs.OS(storageRoot))

	byDistro := make(map[string]int64)
	var totalBytes, totalFiles int64

	err := fs.WalkDir(rofs, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			return nil // ignore unreadable entries, per-file errors aren't fatal
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || strings.HasSuffix(p, ".tmp") {
			return nil
		}

		distro := p
		if idx := strings.Index(p, "/"); idx >= 0 {
			distro = p[:idx]
		}
		if strings.HasPrefix(distro, ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		byDistro[distro] += info.Size()
		totalBytes += info.Size()
		totalFiles++
		return nil
	})
	if err != nil {
		return err
	}

	s.fileMu.Lock()
	s.fileStats = FileStats{TotalBytes: totalBytes, TotalFiles: totalFiles, ByDistro: byDistro}
	s.fileMu.Unlock()
	return nil
}
