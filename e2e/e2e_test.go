package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/flagtouch/internal/app"
	"github.com/ayusman/flagtouch/internal/audio"
	"github.com/ayusman/flagtouch/internal/detector"
	"github.com/ayusman/flagtouch/internal/scene"
	"github.com/ayusman/flagtouch/internal/server"
	"github.com/ayusman/flagtouch/internal/store"
	"github.com/ayusman/flagtouch/internal/trigger"
)

type harness struct {
	scene   *scene.Scene
	store   *store.Store
	source  *detector.Broadcaster
	app     *app.App
	players map[string]*audio.MockPlayer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sc, err := scene.Load(filepath.Join("..", "configs", "scene.yaml"))
	require.NoError(t, err)

	st, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{
		scene:   sc,
		store:   st,
		source:  detector.NewBroadcaster(),
		players: make(map[string]*audio.MockPlayer),
	}
	h.app, err = app.New(app.Config{
		Scene:  sc,
		Store:  st,
		Source: h.source,
		NewPlayer: func(f scene.Flag) audio.Player {
			p := &audio.MockPlayer{}
			h.players[f.Name] = p
			return p
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.app.Close() })
	return h
}

// fingerOn returns a hand whose index tip sits on the named flag, in the
// tracker's top-left image convention.
func (h *harness) fingerOn(t *testing.T, name string) detector.HandLandmarks {
	t.Helper()
	for _, f := range h.scene.Flags {
		if f.Name != name {
			continue
		}
		pos := mgl32.Vec3{f.Position[0], f.Position[1], f.Position[2]}
		screen, err := h.scene.Camera.Projection().WorldToNormalizedScreen(pos)
		require.NoError(t, err)
		return detector.PointingLandmarks(screen.X, 1-screen.Y)
	}
	t.Fatalf("no flag %q", name)
	return detector.HandLandmarks{}
}

func (h *harness) status(name string) trigger.Status {
	for _, fs := range h.app.Statuses() {
		if fs.Name == name {
			return fs.Status
		}
	}
	return trigger.Status{}
}

func TestE2E_HoldOnFlag(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t)
	hand := h.fingerOn(t, "palestine")

	start := time.Now()
	frame := time.Second / 60
	for i := 0; i < 180; i++ {
		h.source.Publish(detector.Result{Hands: []detector.HandLandmarks{hand}})
		h.app.Tick(start.Add(time.Duration(i) * frame))
	}

	assert.Equal(t, 3, h.players["palestine"].Plays())
	assert.Zero(t, h.players["bayrak"].Plays())
	assert.Equal(t, uint64(3), h.status("palestine").Fires)
	assert.Equal(t, trigger.StateTracking, h.status("bayrak").State)
}

func TestE2E_HandPolicies(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t)
	// The first hand is on palestine, the second on bayrak. Only bayrak
	// looks past the first hand.
	result := detector.Result{Hands: []detector.HandLandmarks{
		h.fingerOn(t, "palestine"),
		h.fingerOn(t, "bayrak"),
	}}

	h.source.Publish(result)
	events := h.app.Tick(time.Now())

	require.Len(t, events, 2)
	assert.Equal(t, 1, h.players["palestine"].Plays())
	assert.Equal(t, 1, h.players["bayrak"].Plays())

	// Swap the hands: palestine now sees only the bayrak hand.
	h.source.Publish(detector.Result{Hands: []detector.HandLandmarks{result.Hands[1], result.Hands[0]}})
	h.app.Tick(time.Now().Add(2 * time.Second))
	assert.Equal(t, 1, h.players["palestine"].Plays())
	assert.Equal(t, 2, h.players["bayrak"].Plays())
}

func TestE2E_LostCameraAndHands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t)
	hand := h.fingerOn(t, "palestine")

	h.app.Projection().Set(nil)
	h.source.Publish(detector.Result{Hands: []detector.HandLandmarks{hand}})
	assert.Empty(t, h.app.Tick(time.Now()))
	assert.ErrorIs(t, h.status("palestine").Err, trigger.ErrProjectionUnavailable)

	h.app.Projection().Set(h.scene.Camera.Projection())
	h.source.Publish(detector.Result{Hands: []detector.HandLandmarks{detector.PartialLandmarks(5)}})
	assert.Empty(t, h.app.Tick(time.Now()))
	assert.ErrorIs(t, h.status("palestine").Err, trigger.ErrNoTarget)

	h.source.Publish(detector.Result{Hands: []detector.HandLandmarks{hand}})
	assert.Len(t, h.app.Tick(time.Now()), 1)
}

func TestE2E_ServerReportsTouches(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.app.Run(ctx)

	ts := httptest.NewServer(server.New(server.ConfigFor(h.app, "")))
	defer ts.Close()

	h.source.Publish(detector.Result{Hands: []detector.HandLandmarks{h.fingerOn(t, "bayrak")}})

	require.Eventually(t, func() bool {
		resp, err := ts.Client().Get(ts.URL + "/api/touches?flag=bayrak")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var listed struct {
			Touches []json.RawMessage `json:"touches"`
		}
		json.NewDecoder(resp.Body).Decode(&listed)
		return len(listed.Touches) == 1
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := ts.Client().Get(ts.URL + "/api/flags")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var flags struct {
		Flags []struct {
			Name  string `json:"name"`
			Fires int    `json:"fires"`
		} `json:"flags"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&flags))
	require.Len(t, flags.Flags, 2)
	assert.Equal(t, "palestine", flags.Flags[0].Name)
	assert.Zero(t, flags.Flags[0].Fires)
	assert.Equal(t, 1, flags.Flags[1].Fires)
}
