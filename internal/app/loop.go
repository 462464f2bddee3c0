package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/flagtouch/internal/logging"
	"github.com/ayusman/flagtouch/internal/store"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("app is already running")

// Run starts the tracking runner, the frame loop and the touch sinks, and
// blocks until ctx is cancelled. A tracking failure is logged; the frame loop
// keeps running and the flags stay idle.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	g, ctx := errgroup.WithContext(ctx)

	if a.runner != nil {
		g.Go(func() error {
			if err := a.runner.Run(ctx); err != nil {
				logging.Named("app").Errorf("hand tracking unavailable: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.frameLoop(ctx)
		return nil
	})

	g.Go(func() error {
		a.drain(ctx)
		return nil
	})

	return g.Wait()
}

func (a *App) frameLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(a.scene.FrameRate))
	defer ticker.Stop()

	log := logging.Named("app")
	log.Infof("frame loop started at %d Hz", a.scene.FrameRate)
	if !a.projection.Available() {
		log.Warn("no projection camera attached, flags stay idle until one is set")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.Tick(now)
		}
	}
}

// Tick evaluates every flag once at time now and returns the touches that
// fired. Events are queued for the sinks without blocking; when the queue is
// full they are dropped with a warning.
func (a *App) Tick(now time.Time) []Event {
	if !a.IsEnabled() {
		return nil
	}

	var fired []Event
	for _, b := range a.bindings {
		st := b.trigger.Evaluate(now)
		if !st.Fired() {
			continue
		}

		ev := Event{
			Flag:     b.flag.Name,
			Distance: st.Distance,
			FingerX:  st.Finger.X,
			FingerY:  st.Finger.Y,
			FiredAt:  now,
			flagID:   b.storeID,
		}
		fired = append(fired, ev)

		select {
		case a.events <- ev:
		default:
			logging.Named("app").Warnf("event queue full, dropping touch on %s", ev.Flag)
		}
	}
	return fired
}

// drain delivers queued events until ctx is cancelled, then flushes what is left.
func (a *App) drain(ctx context.Context) {
	for {
		select {
		case ev := <-a.events:
			a.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.events:
					a.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *App) deliver(ev Event) {
	if a.config.Store != nil && ev.flagID != "" {
		touch := &store.Touch{
			FlagID:   ev.flagID,
			Distance: ev.Distance,
			FingerX:  ev.FingerX,
			FingerY:  ev.FingerY,
			FiredAt:  ev.FiredAt,
		}
		if err := a.config.Store.Touches().Create(touch); err != nil {
			logging.Named("app").Warnf("record touch on %s: %v", ev.Flag, err)
		}
	}

	a.hub.Publish(ev)

	a.mu.RLock()
	callbacks := append([]func(Event){}, a.onTouch...)
	a.mu.RUnlock()
	for _, fn := range callbacks {
		fn(ev)
	}
}
