package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/distrocache/distrocache/internal/benchmarks"
	apperrors "github.com/distrocache/distrocache/internal/errors"
	"github.com/distrocache/distrocache/internal/mirrors"
)

// MirrorsHandler serves the admin mirror registry CRUD routes:
// GET/POST /api/admin/mirrors, PUT/DELETE /api/admin/mirrors/<name>.
type MirrorsHandler struct {
	Registry *mirrors.Registry
}

// NewMirrorsHandler constructs a MirrorsHandler over reg.
func NewMirrorsHandler(reg *mirrors.Registry) *MirrorsHandler {
	return &MirrorsHandler{Registry: reg}
}

type mirrorRequest struct {
	Name   string   `json:"name"`
	URLs   []string `json:"urls"`
	Status string   `json:"status,omitempty"`
}

// ServeHTTP dispatches by method and whether a mirror name (and, for the
// benchmark sub-route, a trailing "/benchmark") trails the path.
func (h *MirrorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/admin/mirrors")
	name = strings.TrimPrefix(name, "/")

	if benchName, ok := strings.CutSuffix(name, "/benchmark"); ok && r.Method == http.MethodPost {
		h.benchmark(w, r, benchName)
		return
	}

	switch {
	case r.Method == http.MethodGet && name == "":
		h.list(w, r)
	case r.Method == http.MethodGet && name != "":
		h.get(w, name)
	case r.Method == http.MethodPost && name == "":
		h.create(w, r)
	case r.Method == http.MethodPut && name != "":
		h.update(w, r, name)
	case r.Method == http.MethodDelete && name != "":
		h.delete(w, name)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed on this route")
	}
}

// benchmark times every URL in a mirror's list against testPath and
// persists the list with the fastest URL moved to the front; the other
// URLs keep their existing order.
func (h *MirrorsHandler) benchmark(w http.ResponseWriter, r *http.Request, name string) {
	m, ok := h.Registry.Get(name)
	if !ok {
		WriteAppError(w, apperrors.New(apperrors.ErrMirrorNotFound, "mirror not found").WithDetails("name", name))
		return
	}
	if len(m.URLs) < 2 {
		WriteJSON(w, http.StatusOK, m)
		return
	}

	testPath := r.URL.Query().Get("path")
	if testPath == "" {
		testPath = "/"
	}

	fastest, err := benchmarks.GetTheFastestMirror(m.URLs, testPath)
	if err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrMirrorBenchmark, "benchmarking mirror urls", err))
		return
	}

	reordered := append([]string{fastest}, removeURL(m.URLs, fastest)...)
	updated, err := h.Registry.Update(r.Context(), name, reordered, "")
	if err != nil {
		writeMirrorErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

func removeURL(urls []string, target string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != target {
			out = append(out, u)
		}
	}
	return out
}

func (h *MirrorsHandler) list(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Registry.GetAll())
}

func (h *MirrorsHandler) get(w http.ResponseWriter, name string) {
	m, ok := h.Registry.Get(name)
	if !ok {
		WriteAppError(w, apperrors.New(apperrors.ErrMirrorNotFound, "mirror not found").WithDetails("name", name))
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

func (h *MirrorsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req mirrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrRequestInvalid, "invalid JSON body", err))
		return
	}
	if req.Name == "" || len(req.URLs) == 0 {
		WriteAppError(w, apperrors.New(apperrors.ErrRequestInvalid, "name and urls are required"))
		return
	}

	m, err := h.Registry.Save(r.Context(), req.Name, req.URLs)
	if err != nil {
		writeMirrorErr(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, m)
}

func (h *MirrorsHandler) update(w http.ResponseWriter, r *http.Request, name string) {
	var req mirrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrRequestInvalid, "invalid JSON body", err))
		return
	}

	m, err := h.Registry.Update(r.Context(), name, req.URLs, req.Status)
	if err != nil {
		writeMirrorErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

func (h *MirrorsHandler) delete(w http.ResponseWriter, name string) {
	if err := h.Registry.Delete(name); err != nil {
		writeMirrorErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func writeMirrorErr(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperrors.AppError); ok {
		WriteAppError(w, ae)
		return
	}
	WriteAppError(w, apperrors.Wrap(apperrors.ErrInternal, "mirror operation failed", err))
}
