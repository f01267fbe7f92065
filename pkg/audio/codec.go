// Package audio converts between captured float32 sample frames, the 16-bit
// little-endian PCM wire format the remote endpoint consumes, and playable
// buffers for the output device. All conversions are pure; the optional Opus
// wire profile lives in wire.go.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Format constants shared by the codec and the engine defaults.
const (
	// Wire format expected by the remote endpoint.
	WireSampleRate = 24_000 // Hz
	WireChannels   = 1
	WireBytesDepth = 2 // 16-bit PCM

	// Default capture frame size (samples per frame).
	DefaultFrameSize = 4096
)

// Buffer is a decoded, playable chunk of audio.
type Buffer struct {
	Data       []float32
	SampleRate int
	Channels   int
}

// Duration reports the wall-clock length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Data) / b.Channels
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

// EncodePCM16 quantizes float32 samples in [-1, 1] to little-endian 16-bit
// PCM. Out-of-range samples are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 converts little-endian 16-bit PCM back to float32 samples.
// A trailing odd byte is ignored.
func DecodePCM16(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		out[i] = float32(v) / float32(math.MaxInt16)
	}
	return out
}

// Renderable wraps raw 16-bit PCM bytes from the wire into a buffer the
// playback scheduler can schedule.
func Renderable(raw []byte, sampleRate, channels int) Buffer {
	return Buffer{
		Data:       DecodePCM16(raw),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// RMS computes the root-mean-square level of a frame, used for the
// "currently speaking" indication.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// StereoToMono averages interleaved stereo samples down to mono.
func StereoToMono(st []float32) []float32 {
	n := len(st) / 2
	dst := make([]float32, n)
	for i := 0; i < n; i++ {
		dst[i] = (st[2*i] + st[2*i+1]) / 2
	}
	return dst
}
