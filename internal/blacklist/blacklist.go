// Package blacklist implements filename pattern matching used to refuse
// caching specific package names; a matching file is still fetched and
// served to the client, only not written to the cache.
package blacklist

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	apperrors "github.com/distrocache/distrocache/internal/errors"
	"github.com/distrocache/distrocache/internal/store"
)

// kind distinguishes the two ways a pattern can match.
type kind int

const (
	kindSubstring kind = iota
	kindGlob
)

// entry is a pattern compiled once at insert time: a glob pattern is turned
// into a regexp immediately so matching never re-parses it.
type entry struct {
	raw     string
	kind    kind
	literal string
	glob    *regexp.Regexp
}

// List is an ordered set of blacklist patterns, checked first-match-wins in
// insertion order.
type List struct {
	mu      sync.RWMutex
	entries []entry
	store   *store.Store
}

// New constructs an empty list backed by st, loading whatever patterns are
// already persisted.
func New(st *store.Store) *List {
	l := &List{store: st}
	l.LoadFromStore()
	return l
}

// LoadFromStore replaces the in-memory pattern list with what is persisted.
// Persisted order is not guaranteed by the store, so patterns are sorted by
// creation time to approximate original insertion order.
func (l *List) LoadFromStore() {
	records := l.store.LoadBlacklistPatterns()
	sortByCreatedAt(records)

	entries := make([]entry, 0, len(records))
	for _, rec := range records {
		e, err := compile(rec.Pattern)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
}

func sortByCreatedAt(records []store.BlacklistRecord) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].CreatedAt.Before(records[j-1].CreatedAt); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

// compile turns a raw pattern into its matching form. A pattern containing
// "*" is treated as a glob and compiled to a regexp; anything else is
// matched as a plain case-insensitive substring.
func compile(pattern string) (entry, error) {
	if strings.Contains(pattern, "*") {
		escaped := regexp.QuoteMeta(pattern)
		escaped = strings.ReplaceAll(escaped, `\*`, ".*")
		re, err := regexp.Compile("(?i)" + escaped)
		if err != nil {
			return entry{}, fmt.Errorf("compiling glob pattern %q: %w", pattern, err)
		}
		return entry{raw: pattern, kind: kindGlob, glob: re}, nil
	}
	return entry{raw: pattern, kind: kindSubstring, literal: strings.ToLower(pattern)}, nil
}

// Add inserts a new pattern, rejecting it if it fails to compile.
func (l *List) Add(pattern string) error {
	e, err := compile(pattern)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrBlacklistInvalid, "invalid blacklist pattern", err)
	}

	if err := l.store.AddBlacklistPattern(pattern); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, "persisting blacklist pattern", err)
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return nil
}

// Remove deletes a pattern by its exact raw text.
func (l *List) Remove(pattern string) error {
	l.mu.Lock()
	found := -1
	for i, e := range l.entries {
		if e.raw == pattern {
			found = i
			break
		}
	}
	if found == -1 {
		l.mu.Unlock()
		return apperrors.New(apperrors.ErrBlacklistNotFound, "blacklist pattern not found").WithDetails("pattern", pattern)
	}
	l.entries = append(l.entries[:found], l.entries[found+1:]...)
	l.mu.Unlock()

	if err := l.store.RemoveBlacklistPattern(pattern); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, "removing blacklist pattern", err)
	}
	return nil
}

// All returns every pattern currently registered, in insertion order.
func (l *List) All() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.raw
	}
	return out
}

// Matches reports whether filename is blocked by any registered pattern,
// checking patterns in insertion order and stopping at the first hit.
func (l *List) Matches(filename string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lower := strings.ToLower(filename)
	for _, e := range l.entries {
		switch e.kind {
		case kindGlob:
			if e.glob.MatchString(filename) {
				return true
			}
		case kindSubstring:
			if strings.Contains(lower, e.literal) {
				return true
			}
		}
	}
	return false
}
