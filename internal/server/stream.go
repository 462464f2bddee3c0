package server

import (
	"fmt"
	"net/http"
	"time"
)

// streamInterval paces the preview at roughly 15 FPS.
const streamInterval = 66 * time.Millisecond

// FrameSource provides the latest camera frame as JPEG.
type FrameSource interface {
	LatestJPEG() ([]byte, bool)
}

// StreamHandler serves MJPEG frames from the tracking camera.
type StreamHandler struct {
	frames FrameSource
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames FrameSource) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		jpeg, ok := h.frames.LatestJPEG()
		// The runner replaces the slice on every frame, so identity means no new frame.
		if !ok || (len(last) > 0 && len(jpeg) > 0 && &jpeg[0] == &last[0]) {
			continue
		}
		last = jpeg

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
