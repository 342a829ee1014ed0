// Package mirrors implements the mirror registry: the set of known upstream
// repositories, their approval status, and the selection logic the request
// router uses to pick which mirror name backs a given distro.
package mirrors

import (
	"context"
	"net"
	"net/url"
	"strings"
	"sync"

	logger "github.com/soulteary/logger-kit"

	apperrors "github.com/distrocache/distrocache/internal/errors"
	"github.com/distrocache/distrocache/internal/store"
)

// Status values a mirror can hold.
const (
	StatusApproved    = "approved"
	StatusPending     = "pending"
	StatusBlacklisted = "blacklisted"
)

// Mirror is one named upstream repository with an ordered URL list.
type Mirror struct {
	Name   string
	URLs   []string
	Status string
}

// Registry holds the in-memory mirror table, backed by the persistent store.
// Every mutating operation writes through to the store before returning.
type Registry struct {
	mu       sync.RWMutex
	mirrors  map[string]*Mirror
	store    *store.Store
	log      *logger.Logger
	selfHost string
}

// New constructs a registry backed by st, seeding it with defaults on first
// run and loading whatever is already persisted otherwise.
func New(st *store.Store, selfHost string, log *logger.Logger) (*Registry, error) {
	r := &Registry{
		mirrors:  make(map[string]*Mirror),
		store:    st,
		log:      log,
		selfHost: selfHost,
	}

	seed := make([]store.MirrorRecord, 0, len(Default))
	for _, m := range Default {
		seed = append(seed, store.MirrorRecord{Name: m.Name, URLs: m.URLs, Status: m.Status})
	}
	if err := st.SeedMirrorsIfEmpty(seed); err != nil {
		return nil, err
	}

	r.LoadFromStore()
	return r, nil
}

// LoadFromStore replaces the in-memory table with what the store currently holds.
func (r *Registry) LoadFromStore() {
	records := r.store.LoadMirrors()
	table := make(map[string]*Mirror, len(records))
	for name, rec := range records {
		table[name] = &Mirror{Name: rec.Name, URLs: append([]string(nil), rec.URLs...), Status: rec.Status}
	}

	r.mu.Lock()
	r.mirrors = table
	r.mu.Unlock()
}

// GetApproved returns a snapshot of every mirror currently approved.
func (r *Registry) GetApproved() map[string]*Mirror {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Mirror, len(r.mirrors))
	for name, m := range r.mirrors {
		if m.Status == StatusApproved {
			out[name] = cloneMirror(m)
		}
	}
	return out
}

// GetAll returns a snapshot of every known mirror regardless of status.
func (r *Registry) GetAll() map[string]*Mirror {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Mirror, len(r.mirrors))
	for name, m := range r.mirrors {
		out[name] = cloneMirror(m)
	}
	return out
}

// Get returns a single mirror by name, or ok=false if it does not exist.
func (r *Registry) Get(name string) (*Mirror, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mirrors[name]
	if !ok {
		return nil, false
	}
	return cloneMirror(m), true
}

func cloneMirror(m *Mirror) *Mirror {
	return &Mirror{Name: m.Name, URLs: append([]string(nil), m.URLs...), Status: m.Status}
}

// Save registers a mirror as pending, overwriting any existing mirror of the
// same name whatever its status, after rejecting self-referencing names and filtering the URL list down to
// reachable upstreams. It refuses the save outright if name refers to this
// process itself, or if no URL in the list survives the reachability check.
func (r *Registry) Save(ctx context.Context, name string, urls []string) (*Mirror, error) {
	if r.IsSelf(name) {
		if r.log != nil {
			r.log.Warn().Str("mirror", name).Msg("refusing to save self-referencing mirror")
		}
		return nil, apperrors.New(apperrors.ErrMirrorSelf, "mirror name resolves to this host").
			WithDetails("name", name)
	}

	survivors := filterReachable(ctx, urls)
	if len(survivors) == 0 {
		return nil, apperrors.New(apperrors.ErrMirrorUnreachable, "no reachable URL in mirror").
			WithDetails("name", name).WithDetails("urls", urls)
	}

	m := &Mirror{Name: name, URLs: survivors, Status: StatusPending}

	if err := r.store.UpsertMirror(store.MirrorRecord{Name: m.Name, URLs: m.URLs, Status: m.Status}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreWrite, "persisting mirror", err)
	}

	r.mu.Lock()
	r.mirrors[name] = m
	r.mu.Unlock()

	return cloneMirror(m), nil
}

// Update changes a mirror's URLs and/or status. A nil urls slice or empty
// status string leaves that field unchanged. A non-nil urls slice is
// re-validated through the same reachability filter Save applies, and is
// rejected outright if no URL in it survives.
func (r *Registry) Update(ctx context.Context, name string, urls []string, status string) (*Mirror, error) {
	var survivors []string
	if urls != nil {
		survivors = filterReachable(ctx, urls)
		if len(survivors) == 0 {
			return nil, apperrors.New(apperrors.ErrMirrorUnreachable, "no reachable URL in mirror").
				WithDetails("name", name).WithDetails("urls", urls)
		}
	}

	r.mu.Lock()
	m, ok := r.mirrors[name]
	if !ok {
		r.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrMirrorNotFound, "mirror not found").WithDetails("name", name)
	}

	updated := cloneMirror(m)
	if survivors != nil {
		updated.URLs = survivors
	}
	if status != "" {
		updated.Status = status
	}
	r.mirrors[name] = updated
	r.mu.Unlock()

	if err := r.store.UpsertMirror(store.MirrorRecord{Name: updated.Name, URLs: updated.URLs, Status: updated.Status}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreWrite, "persisting mirror update", err)
	}
	return cloneMirror(updated), nil
}

// Delete removes a mirror from both the in-memory table and the store.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	_, ok := r.mirrors[name]
	if ok {
		delete(r.mirrors, name)
	}
	r.mu.Unlock()

	if !ok {
		return apperrors.New(apperrors.ErrMirrorNotFound, "mirror not found").WithDetails("name", name)
	}
	if err := r.store.DeleteMirror(name); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, "deleting mirror", err)
	}
	return nil
}

// IsSelf reports whether host refers to this process: localhost, a loopback
// literal, or a hostname that resolves to one of this machine's addresses.
func (r *Registry) IsSelf(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return false
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" || host == "0.0.0.0" {
		return true
	}
	if r.selfHost != "" && host == strings.ToLower(r.selfHost) {
		return true
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return false
	}
	local := localAddrs()
	for _, ip := range ips {
		for _, l := range local {
			if ip.Equal(l) {
				return true
			}
		}
	}
	return false
}

// PickUpstreamKey resolves the mirror name a request should be served from:
// a distro's "-security" variant wins over the base distro whenever the
// package path mentions "security" and that variant is approved.
func (r *Registry) PickUpstreamKey(distro, packagePath string) string {
	if strings.Contains(strings.ToLower(packagePath), "security") {
		securityKey := distro + "-security"
		if m, ok := r.Get(securityKey); ok && m.Status == StatusApproved {
			return securityKey
		}
	}
	return distro
}

// ParseHost extracts the hostname (without port) from an absolute-form
// request target, used by the router's dynamic-learning path.
func ParseHost(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", apperrors.New(apperrors.ErrRequestInvalid, "could not determine host from target")
	}
	return host, nil
}
