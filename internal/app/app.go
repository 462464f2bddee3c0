// Package app wires a scene into running touch triggers: one hand-tracking
// source, one projector, and a trigger plus sound per flag.
package app

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ayusman/flagtouch/internal/audio"
	"github.com/ayusman/flagtouch/internal/capture"
	"github.com/ayusman/flagtouch/internal/detector"
	"github.com/ayusman/flagtouch/internal/logging"
	"github.com/ayusman/flagtouch/internal/projection"
	"github.com/ayusman/flagtouch/internal/scene"
	"github.com/ayusman/flagtouch/internal/store"
	"github.com/ayusman/flagtouch/internal/trigger"
)

// DefaultEventBuffer is the capacity of the queue between the frame loop and
// the touch sinks.
const DefaultEventBuffer = 64

// Config holds configuration options for the application.
type Config struct {
	Scene *scene.Scene
	// Store records flags and touches. Optional.
	Store *store.Store
	// Source overrides the hand-tracking runner built from Scene.Tracking.
	Source detector.Source
	// Projector overrides the scene camera.
	Projector projection.Projector
	// NewPlayer overrides how a flag's sound is loaded.
	NewPlayer   func(scene.Flag) audio.Player
	EventBuffer int
}

// FlagStatus is the live state of one flag.
type FlagStatus struct {
	Name      string
	Threshold float64
	Cooldown  time.Duration
	Status    trigger.Status
	Dropped   uint64
	// Touches is the recorded history size, or -1 without a store.
	Touches int
}

type binding struct {
	flag    scene.Flag
	storeID string
	trigger *trigger.Trigger
	player  audio.Player
}

// App is the main application that evaluates every flag once per frame.
type App struct {
	config     Config
	scene      *scene.Scene
	runner     *detector.Runner
	source     detector.Source
	projection *projection.Main
	bindings   []*binding
	hub        *Hub
	events     chan Event

	mu        sync.RWMutex
	enabled   bool
	onTouch   []func(Event)
	onEnabled []func(bool)
	running   bool
}

// New creates an App for config.Scene, filling its defaults and rejecting an
// invalid scene. Triggers are bound immediately; the tracking runner starts with Run.
func New(config Config) (*App, error) {
	if config.Scene == nil {
		return nil, errors.New("app: scene is required")
	}
	config.Scene.ApplyDefaults()
	if err := config.Scene.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultEventBuffer
	}
	if config.NewPlayer == nil {
		config.NewPlayer = newPlayer
	}

	a := &App{
		config:  config,
		scene:   config.Scene,
		hub:     NewHub(),
		events:  make(chan Event, config.EventBuffer),
		enabled: true,
	}

	a.source = config.Source
	if a.source == nil {
		a.runner = newRunner(config.Scene.Tracking)
		a.source = a.runner
	}

	projector := config.Projector
	if projector == nil {
		projector = config.Scene.Camera.Projection()
	}
	a.projection = projection.NewMain(projector)

	if config.Store != nil {
		a.enabled = config.Store.Settings().GetBool(store.SettingEnabled, true)
	}

	for _, f := range config.Scene.Flags {
		b, err := a.bind(f)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.bindings = append(a.bindings, b)
	}

	if config.Store != nil {
		if err := a.pruneFlags(); err != nil {
			a.Close()
			return nil, err
		}
	}

	logging.Named("app").Infof("bound %d flags", len(a.bindings))
	return a, nil
}

// pruneFlags removes stored flags that are no longer in the scene, together
// with their touch history.
func (a *App) pruneFlags() error {
	stored, err := a.config.Store.Flags().List()
	if err != nil {
		return fmt.Errorf("list stored flags: %w", err)
	}

	current := make(map[string]bool, len(a.bindings))
	for _, b := range a.bindings {
		current[b.storeID] = true
	}

	for _, f := range stored {
		if current[f.ID] {
			continue
		}
		if err := a.config.Store.Flags().Delete(f.ID); err != nil {
			return fmt.Errorf("remove flag %q: %w", f.Name, err)
		}
		logging.Named("app").Infof("removed flag %q, no longer in the scene", f.Name)
	}
	return nil
}

func (a *App) bind(f scene.Flag) (*binding, error) {
	cfg := f.TriggerConfig()
	b := &binding{flag: f, player: a.config.NewPlayer(f)}

	if a.config.Store != nil {
		rec := &store.Flag{
			Name:      f.Name,
			X:         float64(cfg.Position.X()),
			Y:         float64(cfg.Position.Y()),
			Z:         float64(cfg.Position.Z()),
			Threshold: f.Threshold,
			Cooldown:  f.Cooldown,
		}
		if err := a.config.Store.Flags().Upsert(rec); err != nil {
			return nil, fmt.Errorf("register flag %q: %w", f.Name, err)
		}
		b.storeID = rec.ID
	}

	b.trigger = trigger.New(cfg, a.source, a.projection, b.player)
	return b, nil
}

// newRunner builds the camera and detector for t. MediaPipe is preferred;
// the mock detector stands in when it is missing.
func newRunner(t scene.Tracking) *detector.Runner {
	log := logging.Named("app")

	if t.Mock {
		log.Info("using mock camera and detector")
		return detector.NewRunner(capture.NewMockCamera(nil, true), detector.NewMockDetector(), t.FPS)
	}

	cam := capture.NewCameraWithConfig(capture.Config{DeviceID: t.Device, Mirror: t.Mirror})

	var d detector.Detector
	if mp, err := detector.NewMediaPipeDetector(t.DetectorConfig()); err == nil {
		log.Info("using MediaPipe hand detection")
		d = mp
	} else {
		log.Warnf("MediaPipe not available (%v), using mock detector", err)
		d = detector.NewMockDetector()
	}
	return detector.NewRunner(cam, d, t.FPS)
}

// newPlayer loads the flag's sound file, or a generated tone when it has
// none. Without a system audio player touches are only logged.
func newPlayer(f scene.Flag) audio.Player {
	log := logging.Named("app")

	if f.Sound.Path != "" {
		p, err := audio.NewExecPlayer(f.Name, f.Sound.Path)
		if err == nil {
			return p
		}
		log.Warnf("%s: %v, using generated tone", f.Name, err)
	}

	p, err := audio.NewClipPlayer(f.Name, f.Sound.Clip())
	if err != nil {
		log.Warnf("%s: %v, touches will be silent", f.Name, err)
		return audio.LogPlayer{Name: f.Name}
	}
	return p
}

// SetEnabled enables or disables touch evaluation and notifies OnEnabled
// callbacks. The choice is persisted when a store is configured.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	callbacks := append([]func(bool){}, a.onEnabled...)
	a.mu.Unlock()

	for _, fn := range callbacks {
		fn(enabled)
	}

	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetBool(store.SettingEnabled, enabled); err != nil {
			logging.Named("app").Warnf("persist enabled: %v", err)
		}
	}
}

// IsEnabled returns whether touch evaluation is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// OnEnabled registers fn to be called after every SetEnabled, whichever
// surface made the change.
func (a *App) OnEnabled(fn func(bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEnabled = append(a.onEnabled, fn)
}

// OnTouch registers fn to be called for every touch, off the frame loop.
func (a *App) OnTouch(fn func(Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTouch = append(a.onTouch, fn)
}

// Statuses returns the live state of every flag in scene order.
func (a *App) Statuses() []FlagStatus {
	out := make([]FlagStatus, 0, len(a.bindings))
	for _, b := range a.bindings {
		cfg := b.trigger.Config()
		fs := FlagStatus{
			Name:      cfg.Name,
			Threshold: cfg.Threshold,
			Cooldown:  cfg.Cooldown,
			Status:    b.trigger.Status(),
			Dropped:   b.trigger.Dropped(),
			Touches:   -1,
		}
		if a.config.Store != nil && b.storeID != "" {
			n, err := a.config.Store.Touches().Count(b.storeID)
			if err != nil {
				logging.Named("app").Warnf("count touches on %s: %v", cfg.Name, err)
			} else {
				fs.Touches = n
			}
		}
		out = append(out, fs)
	}
	return out
}

// Scene returns the loaded scene.
func (a *App) Scene() *scene.Scene {
	return a.scene
}

// Hub returns the touch event hub.
func (a *App) Hub() *Hub {
	return a.hub
}

// Source returns the hand-tracking source shared by all triggers.
func (a *App) Source() detector.Source {
	return a.source
}

// Runner returns the built-in tracking runner, or nil when a source was injected.
func (a *App) Runner() *detector.Runner {
	return a.runner
}

// Projection returns the projector holder. Detaching it puts every flag into
// the projection-unavailable state until a projector is attached again.
func (a *App) Projection() *projection.Main {
	return a.projection
}

// Store returns the configured store, which may be nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Close unsubscribes every trigger and releases the players.
func (a *App) Close() error {
	var errs []error
	for _, b := range a.bindings {
		b.trigger.Close()
		if c, ok := b.player.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s player: %w", b.flag.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
