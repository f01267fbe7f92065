package audio

import (
	"fmt"
	"sync"

	"layeh.com/gopus"
)

// WireCodec converts between sample frames and the encoded wire frames sent
// to the remote endpoint. Decode is the inverse direction: wire frame to raw
// 16-bit PCM bytes, ready for Renderable.
type WireCodec interface {
	Name() string
	Encode(samples []float32) ([]byte, error)
	Decode(wire []byte) ([]byte, error)
}

// PCM16Codec is the default uncompressed wire profile. Stateless and safe
// for concurrent use.
type PCM16Codec struct{}

func (PCM16Codec) Name() string { return "pcm16" }

func (PCM16Codec) Encode(samples []float32) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty sample frame")
	}
	return EncodePCM16(samples), nil
}

func (PCM16Codec) Decode(wire []byte) ([]byte, error) {
	if len(wire) == 0 {
		return nil, fmt.Errorf("empty wire frame")
	}
	return wire, nil
}

// OpusCodec is the compressed wire profile for bandwidth-constrained
// deployments. gopus encoder/decoder state is guarded by a mutex; frames
// must be a duration Opus accepts (2.5-60 ms).
type OpusCodec struct {
	mu         sync.Mutex
	enc        *gopus.Encoder
	dec        *gopus.Decoder
	sampleRate int
	channels   int
	frameSize  int // samples per channel per frame
}

const maxOpusFrameBytes = 4000

// NewOpusCodec creates an Opus wire codec for the given format. bitrate is
// in bits per second; voice-optimized application is always used.
func NewOpusCodec(sampleRate, channels, frameSize, bitrate int) (*OpusCodec, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	enc.SetBitrate(bitrate)

	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	return &OpusCodec{
		enc:        enc,
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  frameSize,
	}, nil
}

func (c *OpusCodec) Name() string { return "opus" }

func (c *OpusCodec) Encode(samples []float32) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty sample frame")
	}

	want := c.frameSize * c.channels
	pcm := make([]int16, want)
	for i := 0; i < want && i < len(samples); i++ {
		s := samples[i]
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int16(s * 32767)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	wire, err := c.enc.Encode(pcm, c.frameSize, maxOpusFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return wire, nil
}

func (c *OpusCodec) Decode(wire []byte) ([]byte, error) {
	if len(wire) == 0 {
		return nil, fmt.Errorf("empty wire frame")
	}

	c.mu.Lock()
	pcm, err := c.dec.Decode(wire, c.frameSize, false)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}

	out := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}
