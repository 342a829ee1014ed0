package cacheengine

import (
	"os"
	"syscall"
	"time"
)

// lastAccessTime returns the later of a file's atime and mtime: mtime is
// the portable fallback when the underlying stat_t doesn't expose atime.
func lastAccessTime(info os.FileInfo) time.Time {
	mtime := info.ModTime()

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return mtime
	}

	atime := time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
	if mtime.After(atime) {
		return mtime
	}
	return atime
}

// bumpAccessTime refreshes a file's atime to now on a best-effort basis;
// failures (read-only filesystem, noatime mounts) are silently ignored.
func bumpAccessTime(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	_ = os.Chtimes(path, time.Now(), info.ModTime())
}
