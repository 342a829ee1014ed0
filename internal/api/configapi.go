package api

import (
	"encoding/json"
	"net/http"

	"github.com/distrocache/distrocache/internal/config"
	apperrors "github.com/distrocache/distrocache/internal/errors"
)

// ConfigHandler serves GET/PUT /api/admin/config against the running
// configuration store, round-tripping single-key updates through the
// on-disk YAML file.
type ConfigHandler struct {
	Store *config.Store
}

// NewConfigHandler constructs a ConfigHandler over st.
func NewConfigHandler(st *config.Store) *ConfigHandler {
	return &ConfigHandler{Store: st}
}

// ServeHTTP dispatches by method.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, h.Store.All())
	case http.MethodPut:
		h.update(w, r)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed on this route")
	}
}

func (h *ConfigHandler) update(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		WriteAppError(w, apperrors.Wrap(apperrors.ErrRequestInvalid, "invalid JSON body", err))
		return
	}

	for key, value := range updates {
		if err := h.Store.Set(key, value); err != nil {
			WriteAppError(w, apperrors.Wrap(apperrors.ErrConfigInvalid, "updating "+key, err))
			return
		}
	}
	WriteJSON(w, http.StatusOK, h.Store.All())
}
