package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// PointingLandmarks returns a right hand with the index finger extended and
// its tip at (x, y) in tracking coordinates.
func PointingLandmarks(x, y float64) HandLandmarks {
	hand := HandLandmarks{
		Points:     make([]Point3D, NumLandmarks),
		Handedness: "Right",
		Score:      0.95,
	}

	// Palm below the fingertip, other fingers curled toward it.
	wrist := Point3D{X: x, Y: y + 0.35}
	hand.Points[Wrist] = wrist
	for i := ThumbCMC; i < NumLandmarks; i++ {
		hand.Points[i] = Point3D{X: wrist.X - 0.02*float64(i%4), Y: wrist.Y - 0.12, Z: -0.02}
	}

	hand.Points[IndexMCP] = Point3D{X: x, Y: y + 0.22}
	hand.Points[IndexPIP] = Point3D{X: x, Y: y + 0.14}
	hand.Points[IndexDIP] = Point3D{X: x, Y: y + 0.07}
	hand.Points[IndexTip] = Point3D{X: x, Y: y}

	return hand
}

// PartialLandmarks returns a hand with only the first n landmarks present.
func PartialLandmarks(n int) HandLandmarks {
	full := PointingLandmarks(0.5, 0.5)
	if n > len(full.Points) {
		n = len(full.Points)
	}
	full.Points = full.Points[:n]
	return full
}
