// Package server provides the HTTP server: flag status, touch history, live
// event and landmark websockets, and the camera preview stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ayusman/flagtouch/internal/app"
	"github.com/ayusman/flagtouch/internal/detector"
	"github.com/ayusman/flagtouch/internal/logging"
	"github.com/ayusman/flagtouch/internal/server/api"
	"github.com/ayusman/flagtouch/internal/store"
)

// shutdownTimeout bounds graceful shutdown in Run.
const shutdownTimeout = 5 * time.Second

// Config holds the server configuration. Every field is optional; routes are
// registered only for what is configured.
type Config struct {
	StaticDir string
	Store     *store.Store
	Flags     api.StatusSource
	Toggle    api.Toggle
	Hub       *app.Hub
	Source    detector.Source
	Frames    FrameSource
}

// ConfigFor fills a Config from a running App.
func ConfigFor(a *app.App, staticDir string) Config {
	cfg := Config{
		StaticDir: staticDir,
		Store:     a.Store(),
		Flags:     a,
		Toggle:    a,
		Hub:       a.Hub(),
		Source:    a.Source(),
	}
	if r := a.Runner(); r != nil {
		cfg.Frames = r
	}
	return cfg
}

// Server represents the HTTP server for the flagtouch application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Flags != nil {
		flags := api.NewFlagHandler(s.config.Flags)
		s.mux.Handle("/api/flags", flags)
		s.mux.Handle("/api/flags/", flags)
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/touches", api.NewTouchHandler(s.config.Store))
	}

	if s.config.Toggle != nil {
		s.mux.Handle("/api/enabled", api.NewEnabledHandler(s.config.Toggle))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/events", NewEventsHandler(s.config.Hub))
	}

	if s.config.Source != nil {
		s.mux.Handle("/api/landmarks", NewLandmarksHandler(s.config.Source))
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Toggle != nil {
		response["enabled"] = s.config.Toggle.IsEnabled()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Named("server").Infof("listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
