package api

import (
	"math"
	"net/http"
	"strings"

	"github.com/ayusman/flagtouch/internal/app"
)

// StatusSource reports the live state of every flag.
type StatusSource interface {
	Statuses() []app.FlagStatus
}

// FlagHandler serves GET /api/flags and GET /api/flags/{name}.
type FlagHandler struct {
	source StatusSource
}

// NewFlagHandler creates a FlagHandler reading from source.
func NewFlagHandler(source StatusSource) *FlagHandler {
	return &FlagHandler{source: source}
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type flagResponse struct {
	Name       string   `json:"name"`
	State      string   `json:"state"`
	Message    string   `json:"message"`
	Error      string   `json:"error,omitempty"`
	Distance   *float64 `json:"distance"`
	Finger     point    `json:"finger"`
	Target     point    `json:"target"`
	Threshold  float64  `json:"threshold"`
	CooldownMs int64    `json:"cooldown_ms"`
	LastFired  string   `json:"last_fired,omitempty"`
	Fires      uint64   `json:"fires"`
	Dropped    uint64   `json:"dropped"`
	// Touches is the stored history size; absent without a store.
	Touches *int `json:"touches,omitempty"`
}

type listFlagsResponse struct {
	Flags []flagResponse `json:"flags"`
}

func toFlagResponse(fs app.FlagStatus) flagResponse {
	st := fs.Status
	resp := flagResponse{
		Name:       fs.Name,
		State:      st.State.String(),
		Message:    st.Message,
		Finger:     point{X: st.Finger.X, Y: st.Finger.Y},
		Target:     point{X: st.Target.X, Y: st.Target.Y},
		Threshold:  fs.Threshold,
		CooldownMs: fs.Cooldown.Milliseconds(),
		LastFired:  formatTime(st.LastFired),
		Fires:      st.Fires,
		Dropped:    fs.Dropped,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if fs.Touches >= 0 {
		n := fs.Touches
		resp.Touches = &n
	}
	// JSON has no infinity; an unmeasured distance is null.
	if !math.IsInf(st.Distance, 0) && !math.IsNaN(st.Distance) {
		d := st.Distance
		resp.Distance = &d
	}
	return resp
}

// ServeHTTP implements the http.Handler interface.
func (h *FlagHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/flags")
	name = strings.TrimPrefix(name, "/")

	statuses := h.source.Statuses()
	if name == "" {
		resp := listFlagsResponse{Flags: make([]flagResponse, 0, len(statuses))}
		for _, fs := range statuses {
			resp.Flags = append(resp.Flags, toFlagResponse(fs))
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	for _, fs := range statuses {
		if fs.Name == name {
			writeJSON(w, http.StatusOK, toFlagResponse(fs))
			return
		}
	}
	writeError(w, http.StatusNotFound, "flag not found")
}
