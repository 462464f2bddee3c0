package app

import (
	"sync"
	"time"
)

// Event is a single touch.
type Event struct {
	Flag     string    `json:"flag"`
	Distance float64   `json:"distance"`
	FingerX  float64   `json:"finger_x"`
	FingerY  float64   `json:"finger_y"`
	FiredAt  time.Time `json:"fired_at"`

	flagID string
}

// Hub fans touch events out to subscribers. A subscriber that is not keeping
// up misses events instead of blocking the others.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of future events with the given buffer, and a
// function that unsubscribes and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends ev to every subscriber with room for it.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
