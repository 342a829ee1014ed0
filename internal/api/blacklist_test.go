package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/blacklist"
	"github.com/distrocache/distrocache/internal/store"
)

func newTestBlacklistHandler(t *testing.T) *BlacklistHandler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "distrocache.db.json")
	st, err := store.Open(path, logger.Default())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return NewBlacklistHandler(blacklist.New(st))
}

func TestBlacklistHandlerAddListRemove(t *testing.T) {
	h := newTestBlacklistHandler(t)

	body, _ := json.Marshal(blacklistRequest{Pattern: "evil-*.deb"})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/blacklist", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/blacklist", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var patterns []string
	if err := json.Unmarshal(w.Body.Bytes(), &patterns); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(patterns) != 1 || patterns[0] != "evil-*.deb" {
		t.Fatalf("All() = %v, want [evil-*.deb]", patterns)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/admin/blacklist?pattern=evil-*.deb", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d, want 200", w.Code)
	}
}

func TestBlacklistHandlerAddRequiresPattern(t *testing.T) {
	h := newTestBlacklistHandler(t)

	body, _ := json.Marshal(blacklistRequest{Pattern: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/blacklist", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an empty pattern", w.Code)
	}
}

func TestBlacklistHandlerRemoveUnknownPattern(t *testing.T) {
	h := newTestBlacklistHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/blacklist?pattern=not-there", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code == http.StatusOK {
		t.Fatal("expected an error removing a pattern that was never added")
	}
}

func TestBlacklistHandlerUnsupportedMethod(t *testing.T) {
	h := newTestBlacklistHandler(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/blacklist", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}
