// Package store implements the persistent durable datastore: stats
// counters, the mirror registry, and blacklist patterns, held in a single
// JSON document on disk and written through an atomic temp-file-then-rename
// commit, the same commit discipline the cache engine uses for package files.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logger "github.com/soulteary/logger-kit"
)

// MirrorRecord is the durable form of a mirror registry entry.
type MirrorRecord struct {
	Name   string   `json:"name"`
	URLs   []string `json:"urls"`
	Status string   `json:"status"`
}

// BlacklistRecord is the durable form of a blacklist pattern.
type BlacklistRecord struct {
	Pattern   string    `json:"pattern"`
	CreatedAt time.Time `json:"created_at"`
}

// document is the on-disk shape of the whole store.
type document struct {
	Stats     map[string]int64          `json:"stats"`
	Mirrors   map[string]MirrorRecord   `json:"mirrors"`
	Blacklist map[string]BlacklistRecord `json:"blacklist"`
}

func newDocument() *document {
	return &document{
		Stats:     make(map[string]int64),
		Mirrors:   make(map[string]MirrorRecord),
		Blacklist: make(map[string]BlacklistRecord),
	}
}

// Store is a single-file relational-shaped datastore. All reads and writes
// go through one mutex: traffic to the admin/registry surface is modest, so
// writer-serialization is sufficient (no long-running transactions, per the
// component's concurrency contract).
type Store struct {
	mu   sync.Mutex
	path string
	log  *logger.Logger
	doc  *document
}

// Open loads (or creates) the store file at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	s := &Store{path: path, log: log}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.doc = newDocument()
			return s.persistLocked()
		}
		return fmt.Errorf("reading store file: %w", err)
	}

	doc := newDocument()
	if len(data) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("parsing store file: %w", err)
		}
	}
	if doc.Stats == nil {
		doc.Stats = make(map[string]int64)
	}
	if doc.Mirrors == nil {
		doc.Mirrors = make(map[string]MirrorRecord)
	}
	if doc.Blacklist == nil {
		doc.Blacklist = make(map[string]BlacklistRecord)
	}
	// Migrate legacy mirror rows lacking a status.
	for name, rec := range doc.Mirrors {
		if rec.Status == "" {
			rec.Status = "approved"
			doc.Mirrors[name] = rec
		}
	}
	s.doc = doc
	return nil
}

// persistLocked writes the document via temp-file-then-rename. Caller must hold s.mu.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing store temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("committing store file: %w", err)
	}
	return nil
}

// SaveStats overwrites the persisted stats counters.
func (s *Store) SaveStats(counters map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Stats = make(map[string]int64, len(counters))
	for k, v := range counters {
		s.doc.Stats[k] = v
	}
	return s.persistLocked()
}

// LoadStats returns the persisted stats counters.
func (s *Store) LoadStats() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.doc.Stats))
	for k, v := range s.doc.Stats {
		out[k] = v
	}
	return out
}

// UpsertMirror inserts or replaces a mirror record and persists it.
func (s *Store) UpsertMirror(rec MirrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Mirrors[rec.Name] = rec
	return s.persistLocked()
}

// DeleteMirror removes a mirror record and persists the change.
func (s *Store) DeleteMirror(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Mirrors, name)
	return s.persistLocked()
}

// LoadMirrors returns every persisted mirror record.
func (s *Store) LoadMirrors() map[string]MirrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]MirrorRecord, len(s.doc.Mirrors))
	for k, v := range s.doc.Mirrors {
		out[k] = v
	}
	return out
}

// SeedMirrorsIfEmpty inserts the given defaults only when the mirrors table
// is currently empty (first run), per the component's seeding contract.
func (s *Store) SeedMirrorsIfEmpty(defaults []MirrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.doc.Mirrors) > 0 {
		return nil
	}
	for _, rec := range defaults {
		s.doc.Mirrors[rec.Name] = rec
	}
	return s.persistLocked()
}

// AddBlacklistPattern inserts a blacklist pattern record.
func (s *Store) AddBlacklistPattern(pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Blacklist[pattern] = BlacklistRecord{Pattern: pattern, CreatedAt: time.Now()}
	return s.persistLocked()
}

// RemoveBlacklistPattern deletes a blacklist pattern record.
func (s *Store) RemoveBlacklistPattern(pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Blacklist, pattern)
	return s.persistLocked()
}

// LoadBlacklistPatterns returns every persisted blacklist pattern, in no
// particular order; callers needing insertion order must track it themselves.
func (s *Store) LoadBlacklistPatterns() []BlacklistRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BlacklistRecord, 0, len(s.doc.Blacklist))
	for _, v := range s.doc.Blacklist {
		out = append(out, v)
	}
	return out
}
