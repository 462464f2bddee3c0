// Package trigger turns asynchronous hand-tracking results into debounced
// touch events for a single object in the scene.
//
// Each frame the trigger takes the newest tracking result (if any), projects
// its object into normalized screen space and compares it with a fingertip
// landmark. The tracking source and the renderer may disagree on which way the
// vertical axis points, so the distance is measured both with the landmark's Y
// flipped and unflipped, and the smaller value is used.
package trigger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/flagtouch/internal/audio"
	"github.com/ayusman/flagtouch/internal/detector"
	"github.com/ayusman/flagtouch/internal/logging"
	"github.com/ayusman/flagtouch/internal/mailbox"
	"github.com/ayusman/flagtouch/internal/projection"
)

// Per-trigger defaults.
const (
	DefaultThreshold = 0.1
	DefaultCooldown  = time.Second
	DefaultLandmark  = detector.IndexTip
)

// HandPolicy selects which detected hands are considered.
type HandPolicy string

const (
	// FirstHand evaluates only the first detected hand.
	FirstHand HandPolicy = "first"
	// NearestHand evaluates every hand and keeps the closest one.
	NearestHand HandPolicy = "nearest"
)

// Config is the per-trigger configuration.
type Config struct {
	Name string
	// Position is the object's world position.
	Position mgl32.Vec3
	// Threshold is the normalized screen distance below which the object counts as touched.
	Threshold float64
	// Cooldown is the minimum time between two fires.
	Cooldown time.Duration
	// Landmark is the hand landmark index used as the pointer.
	Landmark   int
	HandPolicy HandPolicy
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Cooldown < 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.Landmark < 0 || c.Landmark >= detector.NumLandmarks {
		c.Landmark = DefaultLandmark
	}
	if c.HandPolicy == "" {
		c.HandPolicy = FirstHand
	}
}

// Trigger evaluates one object against the tracking stream. Evaluate must be
// called from a single goroutine; Status and Config are safe from any goroutine.
type Trigger struct {
	cfg       Config
	slot      *mailbox.Slot[detector.Result]
	projector projection.Projector
	player    audio.Player
	unsub     func()

	lastFired time.Time
	fired     bool
	fires     uint64

	mu     sync.RWMutex
	status Status
}

// New builds a trigger and subscribes it to source. A nil source leaves the
// trigger permanently idle with ErrNoUpstreamSource. The caller must Close the
// trigger to unsubscribe.
func New(cfg Config, source detector.Source, projector projection.Projector, player audio.Player) *Trigger {
	cfg.applyDefaults()

	t := &Trigger{
		cfg:       cfg,
		slot:      mailbox.New[detector.Result](),
		projector: projector,
		player:    player,
		status:    Status{State: StateIdle, Message: "waiting for hands", Distance: math.Inf(1)},
	}

	log := logging.Named("trigger")
	if source == nil {
		log.Errorf("%s: no tracking source, touches disabled", cfg.Name)
		t.status.Err = ErrNoUpstreamSource
		t.status.Message = "tracking source not found"
		return t
	}

	t.unsub = source.Subscribe(t.slot.Publish)
	log.Infof("%s: bound at %v (threshold %.3f, cooldown %s, landmark %d, %s hand)",
		cfg.Name, cfg.Position, cfg.Threshold, cfg.Cooldown, cfg.Landmark, cfg.HandPolicy)
	return t
}

// Close unsubscribes from the tracking source. It is safe to call more than once.
func (t *Trigger) Close() {
	if t.unsub != nil {
		t.unsub()
		t.unsub = nil
	}
}

// Config returns the effective configuration.
func (t *Trigger) Config() Config {
	return t.cfg
}

// Status returns the result of the most recent evaluation.
func (t *Trigger) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Dropped returns how many tracking results were superseded before a frame consumed them.
func (t *Trigger) Dropped() uint64 {
	return t.slot.Dropped()
}

// Evaluate runs one frame of the trigger at time now and returns the new status.
func (t *Trigger) Evaluate(now time.Time) Status {
	result, ok := t.slot.TryTake()
	if !ok {
		return t.hold()
	}

	st := t.Status()
	st.Err = nil

	fingers := t.candidates(result)
	if len(fingers) == 0 {
		st.State = StateIdle
		st.Err = ErrNoTarget
		if len(result.Hands) == 0 {
			st.Message = "no hands detected"
		} else {
			st.Message = fmt.Sprintf("hand has no landmark %d", t.cfg.Landmark)
		}
		return t.set(st)
	}

	if t.projector == nil {
		return t.set(projectionFailed(st, projection.ErrUnavailable))
	}
	target, err := t.projector.WorldToNormalizedScreen(t.cfg.Position)
	if err != nil {
		return t.set(projectionFailed(st, err))
	}

	best := math.Inf(1)
	var bestFinger r2.Vec
	for _, f := range fingers {
		d, flipped := measure(f, target)
		if d < best {
			best = d
			bestFinger = flipped
		}
	}

	st.State = StateTracking
	st.Distance = best
	st.Finger = bestFinger
	st.Target = target
	st.Message = fmt.Sprintf("tracking, distance %.3f", best)

	if best < t.cfg.Threshold {
		if !t.fired || now.Sub(t.lastFired) > t.cfg.Cooldown {
			t.fire(now)
			st.State = StateTriggered
			st.Message = fmt.Sprintf("touched at distance %.3f", best)
		}
	}

	st.LastFired = t.lastFired
	st.Fires = t.fires
	return t.set(st)
}

// hold keeps the previous status when no new result arrived, except that a
// fire is a one-frame pulse.
func (t *Trigger) hold() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.State == StateTriggered {
		t.status.State = StateTracking
	}
	return t.status
}

func (t *Trigger) set(st Status) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = st
	return st
}

func (t *Trigger) fire(now time.Time) {
	t.lastFired = now
	t.fired = true
	t.fires++
	if t.player != nil {
		t.player.Play()
	}
	logging.Named("trigger").Infof("%s: touched", t.cfg.Name)
}

// candidates returns the pointer landmark of every hand the policy admits.
func (t *Trigger) candidates(result detector.Result) []r2.Vec {
	hands := result.Hands
	if t.cfg.HandPolicy == FirstHand && len(hands) > 1 {
		hands = hands[:1]
	}

	out := make([]r2.Vec, 0, len(hands))
	for _, h := range hands {
		p, ok := h.Landmark(t.cfg.Landmark)
		if !ok {
			continue
		}
		out = append(out, r2.Vec{X: p.X, Y: p.Y})
	}
	return out
}

// measure returns the smaller of the distances from target to finger with
// and without flipping the finger's Y axis, plus the flipped finger position.
func measure(finger, target r2.Vec) (float64, r2.Vec) {
	flipped := r2.Vec{X: finger.X, Y: 1 - finger.Y}
	dFlipped := r2.Norm(r2.Sub(flipped, target))
	dRaw := r2.Norm(r2.Sub(finger, target))
	return math.Min(dFlipped, dRaw), flipped
}

func projectionFailed(st Status, err error) Status {
	st.State = StateIdle
	st.Err = fmt.Errorf("%w: %v", ErrProjectionUnavailable, err)
	st.Message = "no camera for projection"
	return st
}
