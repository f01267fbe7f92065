package util

import (
	"sync"
	"time"
)

// Debouncer invokes a callback once a quiet period elapses without Reset
// being called. It starts disarmed; the first Reset arms it. Thread-safe.
//
// Example usage:
//
//	d := NewDebouncer(500*time.Millisecond, commit)
//	defer d.Stop()
//
//	for chunk := range chunks {
//	    apply(chunk)
//	    d.Reset() // postpone commit while chunks keep arriving
//	}
type Debouncer struct {
	duration time.Duration
	fn       func()
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

// NewDebouncer creates a disarmed debouncer that will call fn after duration
// of inactivity once armed via Reset.
func NewDebouncer(duration time.Duration, fn func()) *Debouncer {
	return &Debouncer{duration: duration, fn: fn}
}

// Reset arms the debouncer, postponing the callback by the full duration.
// No-op after Stop.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.duration, d.fire)
		return
	}
	d.timer.Reset(d.duration)
}

// Cancel disarms the debouncer without firing. A later Reset re-arms it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
}

// Stop permanently disarms the debouncer. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()

	if !stopped {
		d.fn()
	}
}
