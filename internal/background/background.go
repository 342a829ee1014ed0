// Package background runs the periodic maintenance loop: flushing stats,
// refreshing the filesystem usage snapshot, and sweeping stale cache files.
package background

import (
	"context"
	"time"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/cacheengine"
	"github.com/distrocache/distrocache/internal/metrics"
	"github.com/distrocache/distrocache/internal/stats"
)

// tick is how often the loop wakes to check each task's independent deadline.
const tick = 10 * time.Second

const (
	statsFlushInterval = 60 * time.Second
	fileScanInterval   = 60 * time.Second
	cleanupInterval    = 3600 * time.Second
)

// Loop drives the periodic maintenance tasks until its context is cancelled.
type Loop struct {
	Stats       *stats.Stats
	Cache       *cacheengine.Engine
	StorageRoot string
	Log         *logger.Logger
	Metrics     *metrics.Recorder
}

// New constructs a Loop.
func New(st *stats.Stats, cache *cacheengine.Engine, storageRoot string, log *logger.Logger, rec *metrics.Recorder) *Loop {
	return &Loop{Stats: st, Cache: cache, StorageRoot: storageRoot, Log: log, Metrics: rec}
}

// Run blocks, performing an initial filesystem scan and then driving the
// periodic schedule, until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	if err := l.Stats.UpdateFileStats(l.StorageRoot); err != nil && l.Log != nil {
		l.Log.Warn().Err(err).Msg("initial file stats scan failed")
	}
	l.publishCacheUsage()

	lastSave := time.Now()
	lastFileScan := time.Now()
	lastCleanup := time.Now()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(lastSave) > statsFlushInterval {
				if err := l.Stats.Flush(); err != nil && l.Log != nil {
					l.Log.Error().Err(err).Msg("periodic stats flush failed")
				}
				lastSave = now
			}

			if now.Sub(lastFileScan) > fileScanInterval {
				if err := l.Stats.UpdateFileStats(l.StorageRoot); err != nil && l.Log != nil {
					l.Log.Error().Err(err).Msg("file stats scan failed")
				}
				l.publishCacheUsage()
				lastFileScan = now
			}

			if now.Sub(lastCleanup) > cleanupInterval {
				removed, err := l.Cache.CleanOld()
				if err != nil && l.Log != nil {
					l.Log.Error().Err(err).Msg("cache cleanup sweep failed")
				} else if l.Log != nil {
					l.Log.Info().Int("removed", removed).Msg("cache cleanup sweep complete")
				}
				l.publishCacheUsage()
				lastCleanup = now
			}
		}
	}
}

// publishCacheUsage pushes the latest filesystem snapshot into the cache
// size/item-count gauges.
func (l *Loop) publishCacheUsage() {
	snap := l.Stats.FileStatsSnapshot()
	l.Metrics.SetCacheUsage(snap.TotalBytes, int(snap.TotalFiles))
}
