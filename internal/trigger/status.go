package trigger

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// Diagnostic conditions. They never escape Evaluate as errors; they are
// reported through Status.Err.
var (
	// ErrNoUpstreamSource means the trigger was built without a tracking source. It is permanent.
	ErrNoUpstreamSource = errors.New("no tracking source")
	// ErrNoTarget means the latest result had no usable hand or landmark.
	ErrNoTarget = errors.New("no target landmark")
	// ErrProjectionUnavailable means the flag could not be projected this frame.
	ErrProjectionUnavailable = errors.New("projection unavailable")
)

// State is the per-frame trigger state.
type State int

const (
	// StateIdle: no result yet, or the last result had no valid target.
	StateIdle State = iota
	// StateTracking: a target was measured but did not fire.
	StateTracking
	// StateTriggered: fired on this evaluation only.
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateTriggered:
		return "triggered"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the observable outcome of the latest evaluation.
type Status struct {
	State    State
	Err      error
	Message  string
	Distance float64
	// Finger is the reference landmark with its Y axis flipped into render space.
	Finger r2.Vec
	// Target is the flag's normalized screen position.
	Target    r2.Vec
	LastFired time.Time
	// Fires counts events since construction.
	Fires uint64
}

// Fired reports whether this evaluation produced an event.
func (s Status) Fired() bool {
	return s.State == StateTriggered
}
