// Package mailbox provides a single-slot, latest-wins handoff between a
// producer goroutine and a polling consumer.
package mailbox

import "sync"

// Slot holds at most one unread value. Publishing over an unread value
// replaces it; the consumer sees each published value at most once.
// Neither side ever blocks waiting for the other.
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	dirty   bool
	dropped uint64
}

// New creates an empty Slot.
func New[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Publish stores v, discarding any value that has not been taken yet.
func (s *Slot[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		s.dropped++
	}
	s.value = v
	s.dirty = true
}

// TryTake returns the pending value and clears it.
// The second return value is false when nothing new was published since the last take.
func (s *Slot[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		var zero T
		return zero, false
	}

	v := s.value
	var zero T
	s.value = zero
	s.dirty = false
	return v, true
}

// Pending reports whether an unread value is waiting.
func (s *Slot[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Dropped returns how many published values were overwritten before being taken.
func (s *Slot[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
