package scene

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/flagtouch/internal/audio"
	"github.com/ayusman/flagtouch/internal/detector"
	"github.com/ayusman/flagtouch/internal/trigger"
)

const sample = `
frame_rate: 30
camera:
  position: [0, 2, 8]
  target: [0, 1, 0]
  fov_deg: 45
tracking:
  device: 1
  mock: true
flags:
  - name: palestine
    position: [0, 1, 0]
  - name: bell
    position: [2, 1, 0]
    threshold: 0.05
    cooldown: 250ms
    landmark: 4
    hand_policy: nearest
    sound:
      path: sounds/bell.wav
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 30, s.FrameRate)
	assert.Equal(t, []float32{0, 2, 8}, s.Camera.Position)
	assert.Equal(t, []float32{0, 1, 0}, s.Camera.Up, "up defaults")
	assert.Equal(t, float32(45), s.Camera.FovDeg)
	assert.True(t, s.Tracking.Mock)
	assert.Equal(t, 1, s.Tracking.Device)
	assert.Equal(t, detector.DefaultRunnerFPS, s.Tracking.FPS)

	require.Len(t, s.Flags, 2)

	flag := s.Flags[0].TriggerConfig()
	assert.Equal(t, "palestine", flag.Name)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, flag.Position)
	assert.Equal(t, trigger.DefaultThreshold, flag.Threshold)
	assert.Equal(t, time.Second, flag.Cooldown)
	assert.Equal(t, detector.IndexTip, flag.Landmark)
	assert.Equal(t, trigger.FirstHand, flag.HandPolicy)
	assert.Equal(t, audio.DefaultFrequency, s.Flags[0].Sound.Frequency)
	assert.Equal(t, audio.DefaultDuration, s.Flags[0].Sound.Duration)

	bell := s.Flags[1].TriggerConfig()
	assert.Equal(t, 0.05, bell.Threshold)
	assert.Equal(t, 250*time.Millisecond, bell.Cooldown)
	assert.Equal(t, detector.ThumbTip, bell.Landmark)
	assert.Equal(t, trigger.NearestHand, bell.HandPolicy)
	assert.Equal(t, "sounds/bell.wav", s.Flags[1].Sound.Path)
	assert.Zero(t, s.Flags[1].Sound.Frequency)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "no flags", doc: `frame_rate: 60`},
		{name: "missing name", doc: `flags: [{position: [0, 0, 0]}]`},
		{name: "duplicate name", doc: `flags: [{name: a, position: [0, 0, 0]}, {name: a, position: [1, 0, 0]}]`},
		{name: "short position", doc: `flags: [{name: a, position: [0, 0]}]`},
		{name: "negative threshold", doc: `flags: [{name: a, position: [0, 0, 0], threshold: -0.1}]`},
		{name: "negative cooldown", doc: `flags: [{name: a, position: [0, 0, 0], cooldown: -1s}]`},
		{name: "landmark out of range", doc: `flags: [{name: a, position: [0, 0, 0], landmark: 21}]`},
		{name: "unknown policy", doc: `flags: [{name: a, position: [0, 0, 0], hand_policy: all}]`},
		{name: "unknown sound format", doc: `flags: [{name: a, position: [0, 0, 0], sound: {path: a.txt}}]`},
		{name: "bad camera vector", doc: "camera: {up: [0, 1]}\nflags: [{name: a, position: [0, 0, 0]}]"},
		{name: "near after far", doc: "camera: {near: 10, far: 5}\nflags: [{name: a, position: [0, 0, 0]}]"},
		{name: "camera on its target", doc: "camera: {position: [0, 1, 0], target: [0, 1, 0]}\nflags: [{name: a, position: [0, 0, 0]}]"},
		{name: "camera up along view", doc: "camera: {up: [0, 0, 1]}\nflags: [{name: a, position: [0, 0, 0]}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Parse([]byte("flags: [[["))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "scene.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

		s, err := Load(path)
		require.NoError(t, err)
		assert.Len(t, s.Flags, 2)
	})

	t.Run("wrong extension", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "scene.json"))
		assert.ErrorContains(t, err, ".yaml")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.yml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid content names the file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte("frame_rate: 10\n"), 0644))

		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalid)
		assert.ErrorContains(t, err, "empty.yaml")
	})
}

func TestDefault(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, DefaultFrameRate, s.FrameRate)

	cam := s.Camera.Projection()
	p, err := cam.WorldToNormalizedScreen(s.Flags[0].TriggerConfig().Position)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.X, 1e-5)
	assert.InDelta(t, 0.5, p.Y, 1e-5)
}

func TestTracking_DetectorConfig(t *testing.T) {
	cfg := Tracking{MaxHands: 1, MinConfidence: 0.7}.DetectorConfig()
	assert.Equal(t, 1, cfg.MaxHands)
	assert.Equal(t, 0.7, cfg.MinConfidence)
	assert.Equal(t, 0.7, cfg.MinTrackingConf)
}

func TestSound_Clip(t *testing.T) {
	clip := Sound{Frequency: 880, Duration: 50 * time.Millisecond}.Clip()
	assert.Equal(t, audio.DefaultSampleRate, clip.SampleRate)
	assert.Len(t, clip.Samples, 2205)
}
