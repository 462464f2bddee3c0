// Package scene loads the declarative description of a flag scene: the render
// camera, the tracking device and every flag that reacts to a fingertip.
package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/flagtouch/internal/audio"
	"github.com/ayusman/flagtouch/internal/detector"
	"github.com/ayusman/flagtouch/internal/projection"
	"github.com/ayusman/flagtouch/internal/trigger"
)

// DefaultFrameRate is the evaluation rate of the frame loop.
const DefaultFrameRate = 60

// maxFileSize caps scene files at 1MB.
const maxFileSize = 1 << 20

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid scene")

// Scene is the root of a scene file.
type Scene struct {
	FrameRate int      `yaml:"frame_rate"`
	Camera    Camera   `yaml:"camera"`
	Tracking  Tracking `yaml:"tracking"`
	Flags     []Flag   `yaml:"flags"`
}

// Camera describes the render camera used to project flags.
type Camera struct {
	Position []float32 `yaml:"position"`
	Target   []float32 `yaml:"target"`
	Up       []float32 `yaml:"up"`
	FovDeg   float32   `yaml:"fov_deg"`
	Aspect   float32   `yaml:"aspect"`
	Near     float32   `yaml:"near"`
	Far      float32   `yaml:"far"`
}

// Tracking configures the hand-tracking runner.
type Tracking struct {
	Device        int     `yaml:"device"`
	FPS           int     `yaml:"fps"`
	Mirror        bool    `yaml:"mirror"`
	MaxHands      int     `yaml:"max_hands"`
	MinConfidence float64 `yaml:"min_confidence"`
	// Mock runs without a camera or MediaPipe; no hands are ever reported.
	Mock bool `yaml:"mock"`
}

// Flag is one touchable object.
type Flag struct {
	Name       string             `yaml:"name"`
	Position   []float32          `yaml:"position"`
	Threshold  float64            `yaml:"threshold"`
	Cooldown   time.Duration      `yaml:"cooldown"`
	Landmark   *int               `yaml:"landmark"`
	HandPolicy trigger.HandPolicy `yaml:"hand_policy"`
	Sound      Sound              `yaml:"sound"`
}

// Sound is the flag's audio. With no Path a tone is generated.
type Sound struct {
	Path      string        `yaml:"path"`
	Frequency float64       `yaml:"frequency"`
	Duration  time.Duration `yaml:"duration"`
}

// Default returns a scene with one flag at the origin.
func Default() *Scene {
	s := &Scene{Flags: []Flag{{Name: "flag", Position: []float32{0, 1, 0}}}}
	s.ApplyDefaults()
	return s
}

// Load reads, defaults and validates a scene file.
func Load(path string) (*Scene, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("scene file must be .yaml or .yml, got %q", ext)
	}

	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("stat scene file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("scene file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("read scene file: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", clean, err)
	}
	return s, nil
}

// Parse decodes a scene document, applies defaults and validates it.
func Parse(data []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyDefaults fills unset fields. Flag defaults:
// threshold 0.1, cooldown 1s, index fingertip, first hand, 440 Hz tone for 100ms.
func (s *Scene) ApplyDefaults() {
	if s.FrameRate <= 0 {
		s.FrameRate = DefaultFrameRate
	}

	def := projection.DefaultCamera()
	c := &s.Camera
	if c.Position == nil {
		c.Position = def.Position[:]
	}
	if c.Target == nil {
		c.Target = def.Target[:]
	}
	if c.Up == nil {
		c.Up = def.Up[:]
	}
	if c.FovDeg <= 0 {
		c.FovDeg = def.FovYDeg
	}
	if c.Aspect <= 0 {
		c.Aspect = def.Aspect
	}
	if c.Near <= 0 {
		c.Near = def.Near
	}
	if c.Far <= 0 {
		c.Far = def.Far
	}

	if s.Tracking.FPS <= 0 {
		s.Tracking.FPS = detector.DefaultRunnerFPS
	}
	if s.Tracking.MaxHands <= 0 {
		s.Tracking.MaxHands = detector.DefaultConfig().MaxHands
	}
	if s.Tracking.MinConfidence <= 0 {
		s.Tracking.MinConfidence = detector.DefaultConfig().MinConfidence
	}

	for i := range s.Flags {
		f := &s.Flags[i]
		if f.Threshold == 0 {
			f.Threshold = trigger.DefaultThreshold
		}
		if f.Cooldown == 0 {
			f.Cooldown = trigger.DefaultCooldown
		}
		if f.Landmark == nil {
			l := trigger.DefaultLandmark
			f.Landmark = &l
		}
		if f.HandPolicy == "" {
			f.HandPolicy = trigger.FirstHand
		}
		if f.Sound.Path == "" {
			if f.Sound.Frequency <= 0 {
				f.Sound.Frequency = audio.DefaultFrequency
			}
			if f.Sound.Duration <= 0 {
				f.Sound.Duration = audio.DefaultDuration
			}
		}
	}
}

// Validate reports the first problem found, wrapped in ErrInvalid.
func (s *Scene) Validate() error {
	if len(s.Flags) == 0 {
		return fmt.Errorf("%w: no flags", ErrInvalid)
	}

	for _, v := range []struct {
		name string
		vec  []float32
	}{{"camera.position", s.Camera.Position}, {"camera.target", s.Camera.Target}, {"camera.up", s.Camera.Up}} {
		if len(v.vec) != 3 {
			return fmt.Errorf("%w: %s needs 3 components, got %d", ErrInvalid, v.name, len(v.vec))
		}
	}
	if s.Camera.Near >= s.Camera.Far {
		return fmt.Errorf("%w: camera near plane %.3f must be before far plane %.3f", ErrInvalid, s.Camera.Near, s.Camera.Far)
	}
	if err := s.Camera.Projection().Validate(); err != nil {
		return fmt.Errorf("%w: camera: %v", ErrInvalid, err)
	}

	seen := make(map[string]bool, len(s.Flags))
	for i, f := range s.Flags {
		if f.Name == "" {
			return fmt.Errorf("%w: flag %d has no name", ErrInvalid, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate flag name %q", ErrInvalid, f.Name)
		}
		seen[f.Name] = true

		if len(f.Position) != 3 {
			return fmt.Errorf("%w: flag %q position needs 3 components, got %d", ErrInvalid, f.Name, len(f.Position))
		}
		if f.Threshold <= 0 {
			return fmt.Errorf("%w: flag %q threshold must be positive", ErrInvalid, f.Name)
		}
		if f.Cooldown < 0 {
			return fmt.Errorf("%w: flag %q cooldown must not be negative", ErrInvalid, f.Name)
		}
		if f.Landmark != nil && (*f.Landmark < 0 || *f.Landmark >= detector.NumLandmarks) {
			return fmt.Errorf("%w: flag %q landmark %d out of range", ErrInvalid, f.Name, *f.Landmark)
		}
		if f.HandPolicy != trigger.FirstHand && f.HandPolicy != trigger.NearestHand {
			return fmt.Errorf("%w: flag %q unknown hand policy %q", ErrInvalid, f.Name, f.HandPolicy)
		}
		if f.Sound.Path != "" && !audio.IsSoundFile(f.Sound.Path) {
			return fmt.Errorf("%w: flag %q sound %q is not a known audio format", ErrInvalid, f.Name, f.Sound.Path)
		}
	}
	return nil
}

// Projection returns the render camera.
func (c Camera) Projection() projection.Camera {
	return projection.Camera{
		Position: vec3(c.Position),
		Target:   vec3(c.Target),
		Up:       vec3(c.Up),
		FovYDeg:  c.FovDeg,
		Aspect:   c.Aspect,
		Near:     c.Near,
		Far:      c.Far,
	}
}

// DetectorConfig returns the hand detector settings.
func (t Tracking) DetectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.MaxHands = t.MaxHands
	cfg.MinConfidence = t.MinConfidence
	cfg.MinTrackingConf = t.MinConfidence
	return cfg
}

// TriggerConfig returns the trigger settings for f.
func (f Flag) TriggerConfig() trigger.Config {
	landmark := trigger.DefaultLandmark
	if f.Landmark != nil {
		landmark = *f.Landmark
	}
	return trigger.Config{
		Name:       f.Name,
		Position:   vec3(f.Position),
		Threshold:  f.Threshold,
		Cooldown:   f.Cooldown,
		Landmark:   landmark,
		HandPolicy: f.HandPolicy,
	}
}

// Clip returns the generated tone for flags without a sound file.
func (s Sound) Clip() audio.Clip {
	return audio.Tone(s.Frequency, s.Duration, audio.DefaultSampleRate)
}

func vec3(v []float32) mgl32.Vec3 {
	var out mgl32.Vec3
	copy(out[:], v)
	return out
}
