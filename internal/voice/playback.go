package voice

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/ports"
	"github.com/vocalia/voice-engine/pkg/audio"
)

// Scheduler renders decoded buffers back-to-back on the playback device.
// Buffers arrive in the order the remote endpoint emitted them; the
// scheduler places each at max(clock, device-now) and advances the clock by
// the buffer's duration, so output is gapless regardless of whether buffers
// arrive faster or slower than real time. An interruption stops everything
// and zeroes the clock so the next buffer starts immediately.
type Scheduler struct {
	logger *zap.Logger
	dev    ports.PlaybackDevice

	// onIdle fires when the last active unit completes naturally, i.e. the
	// agent finished speaking. Never fired from an interruption.
	onIdle func()

	mu     sync.Mutex
	clock  time.Duration
	units  map[uint64]ports.PlaybackUnit
	nextID uint64
}

// NewScheduler creates a scheduler over the given playback device.
func NewScheduler(logger *zap.Logger, dev ports.PlaybackDevice, onIdle func()) *Scheduler {
	return &Scheduler{
		logger: logger,
		dev:    dev,
		onIdle: onIdle,
		units:  make(map[uint64]ports.PlaybackUnit),
	}
}

// Reset aligns the clock with the device's current time. Called once when
// the session transitions to connected.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.clock = s.dev.Now()
	s.mu.Unlock()
}

// Enqueue schedules one decoded buffer at the next free slot.
func (s *Scheduler) Enqueue(buf audio.Buffer) error {
	s.mu.Lock()

	start := s.clock
	if now := s.dev.Now(); start < now {
		start = now
	}

	unit, err := s.dev.Schedule(buf, start)
	if err != nil {
		s.mu.Unlock()
		return wrapError(KindProtocol, "failed to schedule playback buffer", err)
	}

	id := s.nextID
	s.nextID++
	s.units[id] = unit
	s.clock = start + buf.Duration()

	s.logger.Debug("playback buffer scheduled",
		zap.Uint64("unit_id", id),
		zap.Duration("start", start),
		zap.Duration("duration", buf.Duration()),
		zap.Int("active_units", len(s.units)))
	s.mu.Unlock()

	go s.watch(id, unit)
	return nil
}

// Interrupt handles barge-in: stop every active unit, clear the set, and
// zero the clock so the next buffer starts with no artificial delay.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := len(s.units)
	for id, unit := range s.units {
		unit.Stop()
		delete(s.units, id)
	}
	s.clock = 0
	s.mu.Unlock()

	if stopped > 0 {
		s.logger.Debug("playback interrupted", zap.Int("stopped_units", stopped))
	}
}

// Clear stops all units without the interruption semantics. Used at
// teardown; never fires onIdle.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	for id, unit := range s.units {
		unit.Stop()
		delete(s.units, id)
	}
	s.mu.Unlock()
}

// Active reports the number of in-flight scheduled units.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

// Clock returns the next free playback slot on the device clock.
func (s *Scheduler) Clock() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

func (s *Scheduler) watch(id uint64, unit ports.PlaybackUnit) {
	<-unit.Done()

	s.mu.Lock()
	// Interrupt or Clear may have already removed the unit; completion of a
	// stopped unit must not count as the agent finishing a turn.
	if _, ok := s.units[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.units, id)
	idle := len(s.units) == 0
	s.mu.Unlock()

	if idle && s.onIdle != nil {
		s.onIdle()
	}
}
