package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/flagtouch/internal/app"
	"github.com/ayusman/flagtouch/internal/detector"
	"github.com/ayusman/flagtouch/internal/logging"
	"github.com/ayusman/flagtouch/internal/mailbox"
)

const (
	// landmarkInterval paces landmark pushes at roughly 15 FPS.
	landmarkInterval = 66 * time.Millisecond
	writeTimeout     = 5 * time.Second
	eventBuffer      = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// closed returns a channel that is closed once the client goes away. The
// client is not expected to send anything; reads only detect the close.
func closed(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// EventsHandler pushes every touch to websocket clients as
// {"flag","distance","finger_x","finger_y","fired_at"}.
type EventsHandler struct {
	hub *app.Hub
}

// NewEventsHandler creates an EventsHandler for hub.
func NewEventsHandler(hub *app.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Named("server").Warnf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	events, unsub := h.hub.Subscribe(eventBuffer)
	defer unsub()
	done := closed(conn)

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeJSON(conn, ev); err != nil {
				return
			}
		}
	}
}

// LandmarksHandler streams the latest tracking result to websocket clients.
// Each client has its own latest-wins slot, so a slow client only skips results.
type LandmarksHandler struct {
	source detector.Source
}

// NewLandmarksHandler creates a LandmarksHandler for source.
func NewLandmarksHandler(source detector.Source) *LandmarksHandler {
	return &LandmarksHandler{source: source}
}

type landmarksMessage struct {
	Hands     []detector.HandLandmarks `json:"hands"`
	Timestamp int64                    `json:"timestamp"`
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LandmarksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Named("server").Warnf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	slot := mailbox.New[detector.Result]()
	unsub := h.source.Subscribe(slot.Publish)
	defer unsub()
	done := closed(conn)

	ticker := time.NewTicker(landmarkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			res, ok := slot.TryTake()
			if !ok {
				continue
			}
			msg := landmarksMessage{Hands: res.Hands, Timestamp: res.Timestamp.UnixMilli()}
			if msg.Hands == nil {
				msg.Hands = []detector.HandLandmarks{}
			}
			if err := writeJSON(conn, msg); err != nil {
				return
			}
		}
	}
}
