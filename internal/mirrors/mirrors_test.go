package mirrors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/store"
)

func newTestRegistry(t *testing.T, selfHost string) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "distrocache.db.json")
	st, err := store.Open(path, logger.Default())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	reg, err := New(st, selfHost, logger.Default())
	if err != nil {
		t.Fatalf("mirrors.New: %v", err)
	}
	return reg
}

func TestNewSeedsDefaults(t *testing.T) {
	reg := newTestRegistry(t, "cache.example.com")

	all := reg.GetAll()
	if len(all) != len(Default) {
		t.Fatalf("GetAll() returned %d mirrors, want %d", len(all), len(Default))
	}
	if _, ok := all["debian"]; !ok {
		t.Fatal("expected seeded \"debian\" mirror")
	}
}

func TestIsSelf(t *testing.T) {
	reg := newTestRegistry(t, "cache.example.com")

	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"127.0.0.1:8080", true},
		{"cache.example.com", true},
		{"CACHE.EXAMPLE.COM", true},
		{"deb.debian.org", false},
	}
	for _, tt := range tests {
		if got := reg.IsSelf(tt.host); got != tt.want {
			t.Errorf("IsSelf(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestPickUpstreamKeyPrefersSecurityVariant(t *testing.T) {
	reg := newTestRegistry(t, "")

	key := reg.PickUpstreamKey("debian", "dists/stable-security/main/binary-amd64/Packages")
	if key != "debian-security" {
		t.Fatalf("PickUpstreamKey = %q, want debian-security", key)
	}

	key = reg.PickUpstreamKey("debian", "dists/stable/main/binary-amd64/Packages")
	if key != "debian" {
		t.Fatalf("PickUpstreamKey = %q, want debian", key)
	}
}

func TestPickUpstreamKeyFallsBackWhenVariantUnapproved(t *testing.T) {
	reg := newTestRegistry(t, "")
	if _, err := reg.Update(context.Background(), "debian-security", nil, StatusPending); err != nil {
		t.Fatalf("Update: %v", err)
	}

	key := reg.PickUpstreamKey("debian", "some/security/path")
	if key != "debian" {
		t.Fatalf("PickUpstreamKey = %q, want debian once the security variant is unapproved", key)
	}
}

func TestSaveRejectsSelfReference(t *testing.T) {
	reg := newTestRegistry(t, "cache.example.com")

	_, err := reg.Save(context.Background(), "localhost", []string{"http://localhost/repo"})
	if err == nil {
		t.Fatal("expected Save to reject a self-referencing mirror name")
	}
}

func TestSaveAndUpdateAndDelete(t *testing.T) {
	reg := newTestRegistry(t, "cache.example.com")

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	m, err := reg.Save(context.Background(), "custom", []string{upstream.URL})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if m.Status != StatusPending {
		t.Fatalf("new mirror status = %q, want %q", m.Status, StatusPending)
	}

	updated, err := reg.Update(context.Background(), "custom", nil, StatusApproved)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != StatusApproved {
		t.Fatalf("updated status = %q, want %q", updated.Status, StatusApproved)
	}
	if len(updated.URLs) != 1 || updated.URLs[0] != upstream.URL {
		t.Fatalf("Update with nil urls should leave URLs unchanged, got %v", updated.URLs)
	}

	if err := reg.Delete("custom"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := reg.Get("custom"); ok {
		t.Fatal("mirror should be gone after Delete")
	}
	if err := reg.Delete("custom"); err == nil {
		t.Fatal("expected error deleting an already-deleted mirror")
	}
}

func TestParseHost(t *testing.T) {
	host, err := ParseHost("http://deb.debian.org/debian/pool/main")
	if err != nil {
		t.Fatalf("ParseHost: %v", err)
	}
	if host != "deb.debian.org" {
		t.Fatalf("ParseHost = %q, want deb.debian.org", host)
	}

	if _, err := ParseHost("not a url \x7f"); err == nil {
		t.Fatal("expected ParseHost to reject an unparseable target")
	}
}
