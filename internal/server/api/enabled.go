package api

import (
	"encoding/json"
	"net/http"
)

// Toggle switches touch evaluation on and off.
type Toggle interface {
	SetEnabled(bool)
	IsEnabled() bool
}

// EnabledHandler serves GET and POST /api/enabled.
type EnabledHandler struct {
	toggle Toggle
}

// NewEnabledHandler creates an EnabledHandler for toggle.
func NewEnabledHandler(toggle Toggle) *EnabledHandler {
	return &EnabledHandler{toggle: toggle}
}

type enabledBody struct {
	Enabled *bool `json:"enabled"`
}

// ServeHTTP implements the http.Handler interface.
func (h *EnabledHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req enabledBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.toggle.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enabled := h.toggle.IsEnabled()
	writeJSON(w, http.StatusOK, enabledBody{Enabled: &enabled})
}
