package ports

import (
	"context"
	"errors"
	"time"

	"github.com/vocalia/voice-engine/pkg/audio"
)

// Sentinel errors capture devices return on acquisition failure. The engine
// classifies them into user-facing error kinds.
var (
	// ErrPermissionDenied means the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrNoCaptureDevice means no usable capture device is present.
	ErrNoCaptureDevice = errors.New("no capture device available")
)

// CaptureConfig describes how the microphone should be captured.
type CaptureConfig struct {
	SampleRate int // Hz
	Channels   int
	FrameSize  int // samples per delivered frame
}

// CaptureStream is a live microphone capture. Frames are fixed-size sample
// slices delivered in capture order; the channel closes when the device is
// lost or the stream is closed. Err reports why the channel closed, nil for
// a clean close.
type CaptureStream interface {
	Frames() <-chan []float32
	Err() error
	Close() error
}

// CaptureDevice acquires the microphone. Start may block until the user
// grants or denies access.
type CaptureDevice interface {
	Start(ctx context.Context, cfg CaptureConfig) (CaptureStream, error)
}

// PlaybackUnit is one scheduled buffer on the output device. Done is closed
// on natural completion or after Stop.
type PlaybackUnit interface {
	Stop()
	Done() <-chan struct{}
}

// PlaybackDevice renders audio buffers at scheduled offsets on its own
// monotonic clock. Now and Schedule offsets share that clock's origin.
type PlaybackDevice interface {
	Now() time.Duration
	Schedule(buf audio.Buffer, at time.Duration) (PlaybackUnit, error)
	Close() error
}
