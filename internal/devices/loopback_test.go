package devices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vocalia/voice-engine/internal/ports"
	"github.com/vocalia/voice-engine/pkg/audio"
)

func TestSilentCaptureDeliversFrames(t *testing.T) {
	d := NewSilentCapture(zaptest.NewLogger(t))

	stream, err := d.Start(context.Background(), ports.CaptureConfig{
		SampleRate: 48_000,
		Channels:   1,
		FrameSize:  480, // 10ms frames keep the test fast
	})
	require.NoError(t, err)
	defer stream.Close()

	select {
	case frame := <-stream.Frames():
		assert.Len(t, frame, 480)
		for _, s := range frame {
			assert.Zero(t, s)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestSilentCaptureRejectsBadConfig(t *testing.T) {
	d := NewSilentCapture(zaptest.NewLogger(t))

	_, err := d.Start(context.Background(), ports.CaptureConfig{})
	assert.ErrorIs(t, err, ports.ErrNoCaptureDevice)
}

func TestSilentCaptureCloseEndsStream(t *testing.T) {
	d := NewSilentCapture(zaptest.NewLogger(t))

	stream, err := d.Start(context.Background(), ports.CaptureConfig{
		SampleRate: 48_000,
		Channels:   1,
		FrameSize:  480,
	})
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	assert.Eventually(t, func() bool {
		_, ok := <-stream.Frames()
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, stream.Err())
}

func TestTimerPlaybackUnitCompletesOnSchedule(t *testing.T) {
	d := NewTimerPlayback(zaptest.NewLogger(t))
	defer d.Close()

	buf := audio.Buffer{Data: make([]float32, 240), SampleRate: 24_000, Channels: 1} // 10ms
	unit, err := d.Schedule(buf, d.Now())
	require.NoError(t, err)

	select {
	case <-unit.Done():
	case <-time.After(time.Second):
		t.Fatal("unit did not complete")
	}
}

func TestTimerPlaybackStopCompletesEarly(t *testing.T) {
	d := NewTimerPlayback(zaptest.NewLogger(t))
	defer d.Close()

	buf := audio.Buffer{Data: make([]float32, 240_000), SampleRate: 24_000, Channels: 1} // 10s
	unit, err := d.Schedule(buf, d.Now())
	require.NoError(t, err)

	unit.Stop()
	unit.Stop() // repeat stops are safe

	select {
	case <-unit.Done():
	case <-time.After(time.Second):
		t.Fatal("stopped unit did not complete")
	}
}

func TestTimerPlaybackScheduleAfterClose(t *testing.T) {
	d := NewTimerPlayback(zaptest.NewLogger(t))
	require.NoError(t, d.Close())

	buf := audio.Buffer{Data: make([]float32, 240), SampleRate: 24_000, Channels: 1}
	_, err := d.Schedule(buf, d.Now())
	assert.ErrorIs(t, err, ErrPlaybackClosed)
}

func TestTimerPlaybackClockAdvances(t *testing.T) {
	d := NewTimerPlayback(zaptest.NewLogger(t))
	defer d.Close()

	first := d.Now()
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, d.Now(), first)
}
