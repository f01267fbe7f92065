package voice

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/ports"
	"github.com/vocalia/voice-engine/pkg/audio"
)

// LimitKindSpeechFrames is the rate-limit kind consulted before each
// outbound speech frame.
const LimitKindSpeechFrames = "speech_frames"

// capturePipeline pulls fixed-size sample frames from the microphone stream
// and forwards them, encoded, to the remote connection. The mute flag is
// dereferenced fresh on every frame: the pipeline holds a pointer to the
// session's cell, never a copy of its value.
type capturePipeline struct {
	logger  *zap.Logger
	codec   audio.WireCodec
	limiter ports.RateLimiter

	captureRate int
	channels    int
	wireRate    int

	userID string
	muted  *atomic.Bool
	frames *atomic.Int64

	send     func(ctx context.Context, wire []byte) error
	onLevel  func(level float32)
	onNotice func(notice string)
	onFatal  func(err error)
	touch    func()

	// throttledUntil suppresses repeat throttling notices within one
	// rate-limit window.
	throttledUntil time.Time
}

// run consumes the capture stream until it closes or ctx is canceled.
// Per-frame send failures are absorbed; only device loss is fatal.
func (p *capturePipeline) run(ctx context.Context, stream ports.CaptureStream) {
	p.logger.Debug("capture pipeline started",
		zap.Int("capture_rate", p.captureRate),
		zap.Int("wire_rate", p.wireRate),
		zap.String("wire_codec", p.codec.Name()))

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-stream.Frames():
			if !ok {
				if err := stream.Err(); err != nil {
					p.logger.Error("capture device lost", zap.Error(err))
					if p.onFatal != nil {
						p.onFatal(wrapError(KindDeviceUnavailable, "capture device lost", err))
					}
				}
				return
			}
			p.handleFrame(ctx, frame)
		}
	}
}

func (p *capturePipeline) handleFrame(ctx context.Context, frame []float32) {
	if p.touch != nil {
		p.touch()
	}

	// Mute check must read the live value at the instant the frame arrives.
	if p.muted.Load() {
		if p.onLevel != nil {
			p.onLevel(0)
		}
		return
	}

	if p.onLevel != nil {
		p.onLevel(audio.RMS(frame))
	}

	if p.limiter != nil {
		if d := p.limiter.Allow(p.userID, LimitKindSpeechFrames); !d.Allowed {
			p.noteThrottled(d.RetryAfter)
			return
		}
	}

	samples := frame
	if p.channels == 2 {
		samples = audio.StereoToMono(samples)
	}
	if p.captureRate != p.wireRate {
		samples = audio.Resample(samples, p.captureRate, p.wireRate)
	}

	wire, err := p.codec.Encode(samples)
	if err != nil {
		p.logger.Warn("failed to encode capture frame", zap.Error(err))
		return
	}

	if err := p.send(ctx, wire); err != nil {
		// A single failed frame must not kill an otherwise healthy stream.
		p.logger.Warn("failed to send capture frame",
			zap.Error(wrapError(KindFrameSend, "frame send failed", err)))
		return
	}

	p.frames.Add(1)
}

func (p *capturePipeline) noteThrottled(retryAfter time.Duration) {
	now := time.Now()
	if now.Before(p.throttledUntil) {
		return
	}
	p.throttledUntil = now.Add(retryAfter)

	p.logger.Warn("speech frames throttled",
		zap.String("user_id", p.userID),
		zap.Duration("retry_after", retryAfter))
	if p.onNotice != nil {
		p.onNotice("sending paused by rate limit, retrying shortly")
	}
}
