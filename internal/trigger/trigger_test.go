package trigger

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/flagtouch/internal/audio"
	"github.com/ayusman/flagtouch/internal/detector"
	"github.com/ayusman/flagtouch/internal/projection"
)

// screenAt is a projector that places every object at a fixed screen point.
type screenAt r2.Vec

func (s screenAt) WorldToNormalizedScreen(mgl32.Vec3) (r2.Vec, error) {
	return r2.Vec(s), nil
}

func pointing(x, y float64) detector.Result {
	return detector.Result{Hands: []detector.HandLandmarks{detector.PointingLandmarks(x, y)}}
}

type fixture struct {
	source *detector.Broadcaster
	player *audio.MockPlayer
	trig   *Trigger
}

func newFixture(t *testing.T, cfg Config, p projection.Projector) *fixture {
	t.Helper()
	f := &fixture{
		source: detector.NewBroadcaster(),
		player: &audio.MockPlayer{},
	}
	f.trig = New(cfg, f.source, p, f.player)
	t.Cleanup(f.trig.Close)
	return f
}

func TestMeasure(t *testing.T) {
	tests := []struct {
		name   string
		finger r2.Vec
		target r2.Vec
		want   float64
	}{
		{name: "flipped axis matches", finger: r2.Vec{X: 0.5, Y: 0.2}, target: r2.Vec{X: 0.5, Y: 0.8}, want: 0},
		{name: "raw axis matches", finger: r2.Vec{X: 0.3, Y: 0.3}, target: r2.Vec{X: 0.3, Y: 0.3}, want: 0},
		{name: "both equal at centre line", finger: r2.Vec{X: 0.2, Y: 0.5}, target: r2.Vec{X: 0.5, Y: 0.5}, want: 0.3},
		{name: "smaller of the two", finger: r2.Vec{X: 0.5, Y: 0.1}, target: r2.Vec{X: 0.5, Y: 0.3}, want: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flipped := measure(tt.finger, tt.target)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.InDelta(t, 1-tt.finger.Y, flipped.Y, 1e-9)
			assert.Equal(t, tt.finger.X, flipped.X)
		})
	}
}

func TestTrigger_MinOfTwoHypotheses(t *testing.T) {
	f := newFixture(t, Config{Name: "flag", Threshold: 0.1, Cooldown: time.Second}, screenAt{X: 0.5, Y: 0.8})

	f.source.Publish(pointing(0.5, 0.2))
	st := f.trig.Evaluate(time.Now())

	assert.InDelta(t, 0.0, st.Distance, 1e-9)
	assert.Equal(t, StateTriggered, st.State)
	assert.True(t, st.Fired())
	assert.Equal(t, 1, f.player.Plays())
	assert.InDelta(t, 0.8, st.Finger.Y, 1e-9)
	assert.Equal(t, r2.Vec{X: 0.5, Y: 0.8}, st.Target)
}

func TestTrigger_Debounce(t *testing.T) {
	f := newFixture(t, Config{Name: "flag", Threshold: 0.1, Cooldown: time.Second}, screenAt{X: 0.5, Y: 0.5})

	start := time.Now()
	frame := time.Second / 60
	var firedAt []int

	for i := 0; i < 3*60; i++ {
		f.source.Publish(pointing(0.5, 0.5))
		if f.trig.Evaluate(start.Add(time.Duration(i) * frame)).Fired() {
			firedAt = append(firedAt, i)
		}
	}

	assert.Equal(t, []int{0, 61, 122}, firedAt)
	assert.Equal(t, 3, f.player.Plays())
	assert.Equal(t, uint64(3), f.trig.Status().Fires)
}

func TestTrigger_FirstFireIsImmediate(t *testing.T) {
	// A trigger that never fired must not wait out a cooldown measured from the zero time.
	f := newFixture(t, Config{Name: "flag", Cooldown: time.Hour}, screenAt{X: 0.5, Y: 0.5})

	f.source.Publish(pointing(0.5, 0.5))
	assert.True(t, f.trig.Evaluate(time.Time{}.Add(time.Minute)).Fired())
}

func TestTrigger_AboveThreshold(t *testing.T) {
	f := newFixture(t, Config{Name: "flag", Threshold: 0.1}, screenAt{X: 0.9, Y: 0.9})

	f.source.Publish(pointing(0.1, 0.5))
	st := f.trig.Evaluate(time.Now())

	assert.Equal(t, StateTracking, st.State)
	assert.NoError(t, st.Err)
	assert.Greater(t, st.Distance, 0.1)
	assert.Zero(t, f.player.Plays())
	assert.Contains(t, st.Message, "tracking")
}

func TestTrigger_InsufficientLandmarks(t *testing.T) {
	f := newFixture(t, Config{Name: "flag"}, screenAt{X: 0.5, Y: 0.5})

	before := f.trig.Status()
	f.source.Publish(detector.Result{Hands: []detector.HandLandmarks{detector.PartialLandmarks(detector.IndexTip)}})

	var st Status
	require.NotPanics(t, func() { st = f.trig.Evaluate(time.Now()) })

	assert.ErrorIs(t, st.Err, ErrNoTarget)
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, f.player.Plays())
	assert.True(t, st.LastFired.IsZero())
	assert.Equal(t, before.Fires, st.Fires)
}

func TestTrigger_NoHands(t *testing.T) {
	f := newFixture(t, Config{Name: "flag"}, screenAt{X: 0.5, Y: 0.5})

	f.source.Publish(detector.Result{})
	st := f.trig.Evaluate(time.Now())

	assert.ErrorIs(t, st.Err, ErrNoTarget)
	assert.Equal(t, "no hands detected", st.Message)
}

func TestTrigger_NoCamera(t *testing.T) {
	t.Run("empty holder", func(t *testing.T) {
		f := newFixture(t, Config{Name: "flag"}, projection.NewMain(nil))

		f.source.Publish(pointing(0.5, 0.5))
		st := f.trig.Evaluate(time.Now())

		assert.ErrorIs(t, st.Err, ErrProjectionUnavailable)
		assert.Equal(t, StateIdle, st.State)
		assert.Zero(t, f.player.Plays())
	})

	t.Run("nil projector", func(t *testing.T) {
		f := newFixture(t, Config{Name: "flag"}, nil)

		f.source.Publish(pointing(0.5, 0.5))
		st := f.trig.Evaluate(time.Now())
		assert.ErrorIs(t, st.Err, ErrProjectionUnavailable)
	})

	t.Run("recovers when a camera appears", func(t *testing.T) {
		holder := projection.NewMain(nil)
		f := newFixture(t, Config{Name: "flag"}, holder)

		f.source.Publish(pointing(0.5, 0.5))
		f.trig.Evaluate(time.Now())

		holder.Set(screenAt{X: 0.5, Y: 0.5})
		f.source.Publish(pointing(0.5, 0.5))
		st := f.trig.Evaluate(time.Now())
		assert.NoError(t, st.Err)
		assert.True(t, st.Fired())
	})

	t.Run("behind camera", func(t *testing.T) {
		cam := projection.DefaultCamera()
		f := newFixture(t, Config{Name: "flag", Position: mgl32.Vec3{0, 1, 50}}, cam)

		f.source.Publish(pointing(0.5, 0.5))
		st := f.trig.Evaluate(time.Now())
		assert.ErrorIs(t, st.Err, ErrProjectionUnavailable)
		assert.ErrorContains(t, st.Err, projection.ErrBehindCamera.Error())
	})
}

func TestTrigger_NoNewResultKeepsStatus(t *testing.T) {
	f := newFixture(t, Config{Name: "flag", Cooldown: time.Second}, screenAt{X: 0.5, Y: 0.5})
	now := time.Now()

	f.source.Publish(pointing(0.5, 0.5))
	require.True(t, f.trig.Evaluate(now).Fired())

	next := f.trig.Evaluate(now.Add(time.Millisecond))
	assert.Equal(t, StateTracking, next.State, "a fire lasts one frame")
	assert.InDelta(t, 0.0, next.Distance, 1e-9)
	assert.Equal(t, 1, f.player.Plays())

	again := f.trig.Evaluate(now.Add(2 * time.Second))
	assert.Equal(t, StateTracking, again.State)
	assert.Equal(t, 1, f.player.Plays(), "no result, no event")
}

func TestTrigger_NoUpstreamSource(t *testing.T) {
	player := &audio.MockPlayer{}
	trig := New(Config{Name: "flag"}, nil, screenAt{X: 0.5, Y: 0.5}, player)
	defer trig.Close()

	st := trig.Evaluate(time.Now())
	assert.ErrorIs(t, st.Err, ErrNoUpstreamSource)
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, player.Plays())
}

func TestTrigger_CloseUnsubscribes(t *testing.T) {
	f := newFixture(t, Config{Name: "flag"}, screenAt{X: 0.5, Y: 0.5})
	require.Equal(t, 1, f.source.Subscribers())

	f.trig.Close()
	f.trig.Close()
	assert.Zero(t, f.source.Subscribers())

	f.source.Publish(pointing(0.5, 0.5))
	assert.False(t, f.trig.Evaluate(time.Now()).Fired())
}

func TestTrigger_HandPolicy(t *testing.T) {
	far := detector.PointingLandmarks(0.1, 0.5)
	near := detector.PointingLandmarks(0.5, 0.5)
	result := detector.Result{Hands: []detector.HandLandmarks{far, near}}

	t.Run("first hand only", func(t *testing.T) {
		f := newFixture(t, Config{Name: "flag"}, screenAt{X: 0.5, Y: 0.5})
		f.source.Publish(result)
		st := f.trig.Evaluate(time.Now())
		assert.False(t, st.Fired())
		assert.InDelta(t, 0.4, st.Distance, 1e-9)
	})

	t.Run("nearest hand", func(t *testing.T) {
		f := newFixture(t, Config{Name: "flag", HandPolicy: NearestHand}, screenAt{X: 0.5, Y: 0.5})
		f.source.Publish(result)
		st := f.trig.Evaluate(time.Now())
		assert.True(t, st.Fired())
	})

	t.Run("first hand too short", func(t *testing.T) {
		f := newFixture(t, Config{Name: "flag"}, screenAt{X: 0.5, Y: 0.5})
		f.source.Publish(detector.Result{Hands: []detector.HandLandmarks{detector.PartialLandmarks(4), near}})
		st := f.trig.Evaluate(time.Now())
		assert.ErrorIs(t, st.Err, ErrNoTarget)
	})
}

func TestTrigger_Defaults(t *testing.T) {
	f := newFixture(t, Config{Name: "flag", Threshold: -1, Cooldown: -1, Landmark: 99}, screenAt{})
	cfg := f.trig.Config()

	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	assert.Equal(t, DefaultCooldown, cfg.Cooldown)
	assert.Equal(t, DefaultLandmark, cfg.Landmark)
	assert.Equal(t, FirstHand, cfg.HandPolicy)

	st := f.trig.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.True(t, math.IsInf(st.Distance, 1))
}

func TestTrigger_ConcurrentProducer(t *testing.T) {
	f := newFixture(t, Config{Name: "flag", Cooldown: 0}, screenAt{X: 0.5, Y: 0.5})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			f.source.Publish(pointing(0.5, 0.5))
		}
	}()

	now := time.Now()
	for i := 0; i < 1000; i++ {
		st := f.trig.Evaluate(now.Add(time.Duration(i) * time.Millisecond))
		if st.Err != nil && !errors.Is(st.Err, ErrNoTarget) {
			t.Fatalf("unexpected status error: %v", st.Err)
		}
	}
	wg.Wait()

	taken := uint64(f.player.Plays())
	pending := uint64(0)
	if f.trig.slot.Pending() {
		pending = 1
	}
	assert.Equal(t, uint64(1000), taken+f.trig.Dropped()+pending)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "tracking", StateTracking.String())
	assert.Equal(t, "triggered", StateTriggered.String())
	assert.Equal(t, "State(7)", State(7).String())

	text, err := StateTriggered.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "triggered", string(text))
}
