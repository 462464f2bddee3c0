package detector

import (
	"context"
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/flagtouch/internal/capture"
	"github.com/ayusman/flagtouch/internal/logging"
)

// DefaultRunnerFPS is the detection rate used when none is configured.
const DefaultRunnerFPS = 15

// Broadcaster fans results out to subscribers. It implements Source and is
// safe for concurrent use.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Result)
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(Result))}
}

// Subscribe registers fn to receive every published result.
func (b *Broadcaster) Subscribe(fn func(Result)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

// Publish delivers r to all current subscribers on the caller's goroutine.
func (b *Broadcaster) Publish(r Result) {
	b.mu.RLock()
	fns := make([]func(Result), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(r)
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Runner drives a camera and a Detector on its own goroutine and publishes
// every detection as a Result.
type Runner struct {
	*Broadcaster

	camera   capture.Camera
	detector Detector
	fps      int
	now      func() time.Time

	previewMu sync.RWMutex
	preview   []byte
}

// NewRunner creates a Runner reading frames from camera at fps.
func NewRunner(camera capture.Camera, d Detector, fps int) *Runner {
	if fps <= 0 {
		fps = DefaultRunnerFPS
	}
	return &Runner{
		Broadcaster: NewBroadcaster(),
		camera:      camera,
		detector:    d,
		fps:         fps,
		now:         time.Now,
	}
}

// Run opens the camera and publishes results until ctx is cancelled.
// The camera and detector are closed on return.
func (r *Runner) Run(ctx context.Context) error {
	if r.camera == nil || r.detector == nil {
		return errors.New("runner needs a camera and a detector")
	}

	if err := r.camera.Open(); err != nil {
		return err
	}
	r.camera.SetFPS(r.fps)

	log := logging.Named("runner")
	defer func() {
		if err := r.camera.Close(); err != nil {
			log.Warnf("close camera: %v", err)
		}
		if err := r.detector.Close(); err != nil {
			log.Warnf("close detector: %v", err)
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(r.fps))
	defer ticker.Stop()

	log.Infof("hand tracking started at %d fps", r.fps)
	failing := false

	for {
		select {
		case <-ctx.Done():
			log.Info("hand tracking stopped")
			return nil
		case <-ticker.C:
			err := r.step()
			switch {
			case err != nil && !failing:
				log.Warnf("tracking step failed: %v", err)
				failing = true
			case err == nil && failing:
				log.Info("tracking recovered")
				failing = false
			}
		}
	}
}

func (r *Runner) step() error {
	frame, err := r.camera.ReadFrame()
	if err != nil {
		return err
	}
	r.storePreview(frame)
	hands, err := r.detector.Detect(frame)
	frame.Close()
	if err != nil {
		return err
	}

	r.Publish(Result{Hands: hands, Timestamp: r.now()})
	return nil
}

func (r *Runner) storePreview(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	r.previewMu.Lock()
	r.preview = data
	r.previewMu.Unlock()
}

// LatestJPEG returns the most recent camera frame encoded as JPEG.
func (r *Runner) LatestJPEG() ([]byte, bool) {
	r.previewMu.RLock()
	defer r.previewMu.RUnlock()
	return r.preview, r.preview != nil
}
