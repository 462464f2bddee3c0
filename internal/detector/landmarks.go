// Package detector provides the hand-tracking side of the pipeline: landmark
// types, detector implementations and the Runner that publishes results.
package detector

import "time"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a landmark position. X and Y are normalized to the image
// (0..1, origin top-left); Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks is one detected hand. A complete MediaPipe hand has
// NumLandmarks points, but partial results are passed through untouched.
type HandLandmarks struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"` // "Left" or "Right"
	Score      float64   `json:"score"`
}

// Landmark returns the point at index i, or false if the hand is too short.
func (h HandLandmarks) Landmark(i int) (Point3D, bool) {
	if i < 0 || i >= len(h.Points) {
		return Point3D{}, false
	}
	return h.Points[i], true
}

// Result is one frame's worth of tracking output. It is treated as immutable
// once published.
type Result struct {
	Hands     []HandLandmarks `json:"hands"`
	Timestamp time.Time       `json:"timestamp"`
}
