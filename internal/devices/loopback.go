// Package devices provides software implementations of the capture and
// playback device ports: a silence-emitting capture device and a
// timer-paced playback device. They let the engine run end to end on hosts
// without audio hardware; product builds swap in real device adapters.
package devices

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/ports"
	"github.com/vocalia/voice-engine/pkg/audio"
)

// ErrPlaybackClosed is returned by Schedule once the device is closed.
var ErrPlaybackClosed = errors.New("playback device closed")

// SilentCapture delivers zeroed frames at the real-time pace the requested
// format implies.
type SilentCapture struct {
	logger *zap.Logger
}

// NewSilentCapture creates the silence-emitting capture device.
func NewSilentCapture(logger *zap.Logger) *SilentCapture {
	return &SilentCapture{logger: logger}
}

func (d *SilentCapture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureStream, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 || cfg.FrameSize <= 0 {
		return nil, ports.ErrNoCaptureDevice
	}

	interval := time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate)
	d.logger.Debug("silent capture started",
		zap.Int("sample_rate", cfg.SampleRate),
		zap.Int("frame_size", cfg.FrameSize),
		zap.Duration("frame_interval", interval))

	streamCtx, cancel := context.WithCancel(ctx)
	s := &silentStream{
		frames: make(chan []float32),
		cancel: cancel,
	}

	go func() {
		defer close(s.frames)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-streamCtx.Done():
				return
			case <-ticker.C:
				frame := make([]float32, cfg.FrameSize*cfg.Channels)
				select {
				case s.frames <- frame:
				case <-streamCtx.Done():
					return
				}
			}
		}
	}()

	return s, nil
}

type silentStream struct {
	frames chan []float32
	cancel context.CancelFunc
}

func (s *silentStream) Frames() <-chan []float32 { return s.frames }

// Err is always nil: a silent stream only ends by being closed.
func (s *silentStream) Err() error { return nil }

func (s *silentStream) Close() error {
	s.cancel()
	return nil
}

// TimerPlayback discards audio but honors scheduling semantics on a real
// monotonic clock: a unit completes when its scheduled end time passes.
type TimerPlayback struct {
	logger *zap.Logger
	epoch  time.Time

	mu     sync.Mutex
	closed bool
}

// NewTimerPlayback creates the timer-paced playback device.
func NewTimerPlayback(logger *zap.Logger) *TimerPlayback {
	return &TimerPlayback{logger: logger, epoch: time.Now()}
}

func (d *TimerPlayback) Now() time.Duration {
	return time.Since(d.epoch)
}

func (d *TimerPlayback) Schedule(buf audio.Buffer, at time.Duration) (ports.PlaybackUnit, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrPlaybackClosed
	}

	unit := &timerUnit{
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}

	delay := at + buf.Duration() - d.Now()
	go func() {
		defer close(unit.done)
		if delay <= 0 {
			return
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-unit.stop:
		}
	}()

	return unit, nil
}

func (d *TimerPlayback) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

type timerUnit struct {
	once sync.Once
	done chan struct{}
	stop chan struct{}
}

func (u *timerUnit) Stop() { u.once.Do(func() { close(u.stop) }) }

func (u *timerUnit) Done() <-chan struct{} { return u.done }
