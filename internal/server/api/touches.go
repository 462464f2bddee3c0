package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/flagtouch/internal/store"
)

// maxTouchLimit caps a single touch listing.
const maxTouchLimit = 1000

// TouchHandler serves GET /api/touches?flag=<name>&limit=<n>.
type TouchHandler struct {
	store *store.Store
}

// NewTouchHandler creates a new TouchHandler with the given store.
func NewTouchHandler(s *store.Store) *TouchHandler {
	return &TouchHandler{store: s}
}

type touchResponse struct {
	ID       string  `json:"id"`
	Flag     string  `json:"flag"`
	Distance float64 `json:"distance"`
	Finger   point   `json:"finger"`
	FiredAt  string  `json:"fired_at"`
}

type listTouchesResponse struct {
	Touches []touchResponse `json:"touches"`
}

// ServeHTTP implements the http.Handler interface.
func (h *TouchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()

	limit := store.DefaultTouchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTouchLimit)
	}

	var flagID string
	if name := q.Get("flag"); name != "" {
		f, err := h.store.Flags().GetByName(name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "flag not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to get flag")
			return
		}
		flagID = f.ID
	}

	touches, err := h.store.Touches().List(flagID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list touches")
		return
	}

	resp := listTouchesResponse{Touches: make([]touchResponse, 0, len(touches))}
	for _, t := range touches {
		resp.Touches = append(resp.Touches, touchResponse{
			ID:       t.ID,
			Flag:     t.FlagName,
			Distance: t.Distance,
			Finger:   point{X: t.FingerX, Y: t.FingerY},
			FiredAt:  formatTime(t.FiredAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
