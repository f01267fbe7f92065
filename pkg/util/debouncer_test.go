package util

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer(t *testing.T) {
	t.Run("fires after timeout once armed", func(t *testing.T) {
		fired := make(chan struct{})
		d := NewDebouncer(50*time.Millisecond, func() { close(fired) })
		defer d.Stop()

		d.Reset()
		select {
		case <-fired:
			// Expected
		case <-time.After(200 * time.Millisecond):
			t.Fatal("debouncer did not fire within expected time")
		}
	})

	t.Run("disarmed until first reset", func(t *testing.T) {
		var count atomic.Int32
		d := NewDebouncer(30*time.Millisecond, func() { count.Add(1) })
		defer d.Stop()

		time.Sleep(100 * time.Millisecond)
		if count.Load() != 0 {
			t.Fatal("debouncer fired without being armed")
		}
	})

	t.Run("reset postpones firing", func(t *testing.T) {
		var count atomic.Int32
		d := NewDebouncer(50*time.Millisecond, func() { count.Add(1) })
		defer d.Stop()

		d.Reset()
		for i := 0; i < 4; i++ {
			time.Sleep(25 * time.Millisecond)
			d.Reset()
		}
		if count.Load() != 0 {
			t.Fatal("debouncer fired while being reset")
		}

		time.Sleep(150 * time.Millisecond)
		if count.Load() != 1 {
			t.Fatalf("expected exactly one fire after resets stopped, got %d", count.Load())
		}
	})

	t.Run("cancel disarms without firing", func(t *testing.T) {
		var count atomic.Int32
		d := NewDebouncer(30*time.Millisecond, func() { count.Add(1) })
		defer d.Stop()

		d.Reset()
		d.Cancel()
		time.Sleep(100 * time.Millisecond)
		if count.Load() != 0 {
			t.Fatal("debouncer fired after cancel")
		}

		// Re-arming still works.
		d.Reset()
		time.Sleep(100 * time.Millisecond)
		if count.Load() != 1 {
			t.Fatal("debouncer did not fire after re-arming")
		}
	})

	t.Run("stop prevents firing", func(t *testing.T) {
		var count atomic.Int32
		d := NewDebouncer(30*time.Millisecond, func() { count.Add(1) })

		d.Reset()
		d.Stop()
		time.Sleep(100 * time.Millisecond)
		if count.Load() != 0 {
			t.Fatal("debouncer fired after stop")
		}
	})

	t.Run("reset after stop is no-op", func(t *testing.T) {
		var count atomic.Int32
		d := NewDebouncer(30*time.Millisecond, func() { count.Add(1) })
		d.Stop()

		d.Reset()
		time.Sleep(100 * time.Millisecond)
		if count.Load() != 0 {
			t.Fatal("debouncer fired after stop and reset")
		}
	})

	t.Run("multiple stops are safe", func(t *testing.T) {
		d := NewDebouncer(30*time.Millisecond, func() {})
		d.Stop()
		d.Stop()
		d.Stop()
	})
}
