// Package projection maps world-space positions to normalized viewport
// coordinates (0..1, origin bottom-left), the way a render camera does.
package projection

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrUnavailable is returned while no camera is attached.
	ErrUnavailable = errors.New("projection camera unavailable")
	// ErrBehindCamera is returned for positions that cannot be projected onto the viewport.
	ErrBehindCamera = errors.New("position is behind the camera")
	// ErrDegenerate is returned for a camera whose pose or lens cannot form a view.
	ErrDegenerate = errors.New("degenerate camera")
)

// Projector converts a world position into normalized screen coordinates.
type Projector interface {
	WorldToNormalizedScreen(world mgl32.Vec3) (r2.Vec, error)
}

// Camera is a perspective camera described by its pose and lens.
type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
	FovYDeg  float32
	Aspect   float32
	Near     float32
	Far      float32
}

// DefaultCamera returns a 16:9 camera ten units back from the origin, looking at it.
func DefaultCamera() Camera {
	return Camera{
		Position: mgl32.Vec3{0, 1, 10},
		Target:   mgl32.Vec3{0, 1, 0},
		Up:       mgl32.Vec3{0, 1, 0},
		FovYDeg:  60,
		Aspect:   16.0 / 9.0,
		Near:     0.3,
		Far:      1000,
	}
}

// Validate reports a pose or lens that cannot form a view: eye on the
// target, up parallel to the view direction, or a bad field of view or clip range.
func (c Camera) Validate() error {
	dir := c.Target.Sub(c.Position)
	switch {
	case dir.Len() == 0:
		return fmt.Errorf("%w: position equals target", ErrDegenerate)
	case dir.Cross(c.Up).Len() == 0:
		return fmt.Errorf("%w: up is parallel to the view direction", ErrDegenerate)
	case c.FovYDeg <= 0 || c.FovYDeg >= 180:
		return fmt.Errorf("%w: field of view %.1f out of (0, 180)", ErrDegenerate, c.FovYDeg)
	case c.Aspect <= 0:
		return fmt.Errorf("%w: aspect %.3f must be positive", ErrDegenerate, c.Aspect)
	case c.Near <= 0 || c.Near >= c.Far:
		return fmt.Errorf("%w: clip range %.3f..%.3f", ErrDegenerate, c.Near, c.Far)
	}
	return nil
}

// ViewProjection returns projection * view.
func (c Camera) ViewProjection() mgl32.Mat4 {
	view := mgl32.LookAtV(c.Position, c.Target, c.Up)
	proj := mgl32.Perspective(mgl32.DegToRad(c.FovYDeg), c.Aspect, c.Near, c.Far)
	return proj.Mul4(view)
}

// WorldToNormalizedScreen projects world into viewport space. Points in front of
// the camera but outside the frustum yield coordinates outside 0..1.
func (c Camera) WorldToNormalizedScreen(world mgl32.Vec3) (r2.Vec, error) {
	clip := c.ViewProjection().Mul4x1(world.Vec4(1))
	if clip.W() <= 0 {
		return r2.Vec{}, ErrBehindCamera
	}

	ndc := clip.Vec3().Mul(1 / clip.W())
	out := r2.Vec{
		X: float64(ndc.X()+1) / 2,
		Y: float64(ndc.Y()+1) / 2,
	}
	if math.IsNaN(out.X) || math.IsNaN(out.Y) {
		return r2.Vec{}, ErrDegenerate
	}
	return out, nil
}

// Main holds the active projector. It may be empty, for example before the
// render surface exists or after it is torn down.
type Main struct {
	mu        sync.RWMutex
	projector Projector
}

// NewMain returns a holder with p attached. p may be nil.
func NewMain(p Projector) *Main {
	return &Main{projector: p}
}

// Set attaches p, or detaches the current projector when p is nil.
func (m *Main) Set(p Projector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projector = p
}

// Available reports whether a projector is attached.
func (m *Main) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projector != nil
}

// WorldToNormalizedScreen delegates to the attached projector or returns ErrUnavailable.
func (m *Main) WorldToNormalizedScreen(world mgl32.Vec3) (r2.Vec, error) {
	m.mu.RLock()
	p := m.projector
	m.mu.RUnlock()

	if p == nil {
		return r2.Vec{}, ErrUnavailable
	}
	return p.WorldToNormalizedScreen(world)
}
