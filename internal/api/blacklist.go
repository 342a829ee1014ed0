package api

import (
	"encoding/json"
	"net/http"

	"github.com/distrocache/distrocache/internal/blacklist"
	apperrors "github.com/distrocache/distrocache/internal/errors"
)

// BlacklistHandler serves GET/POST/DELETE /api/admin/blacklist.
type BlacklistHandler struct {
	List *blacklist.List
}

// NewBlacklistHandler constructs a BlacklistHandler over bl.
func NewBlacklistHandler(bl *blacklist.List) *BlacklistHandler {
	return &BlacklistHandler{List: bl}
}

type blacklistRequest struct {
	Pattern string `json:"pattern"`
}

// ServeHTTP dispatches by method.
func (h *BlacklistHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, h.List.All())
	case http.MethodPost:
		h.add(w, r)
	case http.MethodDelete:
		h.remove(w, r)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed on this route")
	}
}

func (h *BlacklistHandler) add(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pattern == "" {
		WriteAppError(w, apperrors.New(apperrors.ErrRequestInvalid, "pattern is required"))
		return
	}
	if err := h.List.Add(req.Pattern); err != nil {
		writeBlacklistErr(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"pattern": req.Pattern})
}

func (h *BlacklistHandler) remove(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		var req blacklistRequest
		json.NewDecoder(r.Body).Decode(&req)
		pattern = req.Pattern
	}
	if pattern == "" {
		WriteAppError(w, apperrors.New(apperrors.ErrRequestInvalid, "pattern is required"))
		return
	}
	if err := h.List.Remove(pattern); err != nil {
		writeBlacklistErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func writeBlacklistErr(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperrors.AppError); ok {
		WriteAppError(w, ae)
		return
	}
	WriteAppError(w, apperrors.Wrap(apperrors.ErrInternal, "blacklist operation failed", err))
}
