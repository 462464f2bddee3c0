package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub(t *testing.T) {
	t.Run("delivers to every subscriber", func(t *testing.T) {
		h := NewHub()
		a, unsubA := h.Subscribe(1)
		b, unsubB := h.Subscribe(1)
		defer unsubA()
		defer unsubB()

		h.Publish(Event{Flag: "x"})
		assert.Equal(t, "x", (<-a).Flag)
		assert.Equal(t, "x", (<-b).Flag)
	})

	t.Run("slow subscriber misses events", func(t *testing.T) {
		h := NewHub()
		ch, unsub := h.Subscribe(1)
		defer unsub()

		h.Publish(Event{Flag: "first"})
		h.Publish(Event{Flag: "second"})
		assert.Equal(t, "first", (<-ch).Flag)
		assert.Empty(t, ch)
	})

	t.Run("unsubscribe closes the channel", func(t *testing.T) {
		h := NewHub()
		ch, unsub := h.Subscribe(1)
		assert.Equal(t, 1, h.Len())

		unsub()
		unsub()
		assert.Zero(t, h.Len())
		_, ok := <-ch
		assert.False(t, ok)

		h.Publish(Event{Flag: "after"})
	})
}
