// Package vfs adapts vfs-kit's filesystem abstraction to Go's standard
// io/fs interfaces, so code such as the file-stats walker can address either a real
// directory tree or an in-memory filesystem (used in tests) through the
// same API, and expose either one read-only via io/fs.FS.
package vfs

import (
	"io"
	"io/fs"

	vfskit "github.com/soulteary/vfs-kit"
)

// FS is the read/write filesystem surface distrocache code is built
// against. vfs-kit's memory and OS-backed filesystems both satisfy it.
type FS = vfskit.FileSystem

// Memory returns a fresh in-memory filesystem, used by tests that need a
// cache root without touching disk.
func Memory() FS {
	return vfskit.NewMemFS()
}

// OS returns a filesystem rooted at dir on the real filesystem.
func OS(dir string) FS {
	return vfskit.NewOSFS(dir)
}

// WriteFile creates (or truncates) path on fsys and writes data to it.
func WriteFile(fsys FS, path string, data []byte, perm fs.FileMode) error {
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MkdirAll creates path and any missing parents on fsys.
func MkdirAll(fsys FS, path string, perm fs.FileMode) error {
	return fsys.MkdirAll(path, perm)
}

// AsReadOnlyFS exposes fsys as a standard io/fs.FS, so it can be walked or
// read with fs.WalkDir / fs.ReadFile without granting write access.
func AsReadOnlyFS(fsys FS) fs.FS {
	return &readOnlyFS{fsys: fsys}
}

type readOnlyFS struct {
	fsys FS
}

func (r *readOnlyFS) Open(name string) (fs.File, error) {
	info, err := r.fsys.Stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if info.IsDir() {
		entries, err := r.fsys.ReadDir(name)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &roDir{info: info, entries: entries}, nil
	}

	f, err := r.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// roDir implements fs.ReadDirFile for a directory snapshot.
type roDir struct {
	info    fs.FileInfo
	entries []fs.DirEntry
	offset  int
}

func (d *roDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *roDir) Read([]byte) (int, error)   { return 0, &fs.PathError{Op: "read", Path: d.info.Name(), Err: fs.ErrInvalid} }
func (d *roDir) Close() error               { return nil }

func (d *roDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if n <= 0 {
		out := d.entries[d.offset:]
		d.offset = len(d.entries)
		return out, nil
	}

	remaining := len(d.entries) - d.offset
	if remaining == 0 {
		return nil, io.EOF
	}
	if n > remaining {
		n = remaining
	}
	out := d.entries[d.offset : d.offset+n]
	d.offset += n
	return out, nil
}
