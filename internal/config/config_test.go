package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocalia/voice-engine/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "gpt-4o-realtime-preview", cfg.Realtime.Model)
	assert.Equal(t, "shimmer", cfg.Realtime.Voice)
	assert.Equal(t, "server_vad", cfg.Realtime.VADMode)
	assert.Equal(t, 48_000, cfg.Audio.CaptureSampleRate)
	assert.Equal(t, 4096, cfg.Audio.FrameSize)
	assert.Equal(t, 24_000, cfg.Audio.WireSampleRate)
	assert.Equal(t, "pcm16", cfg.Audio.WireCodec)
	assert.Equal(t, 500, cfg.Session.CoalesceTimeoutMs)
	assert.Equal(t, 1024, cfg.Limits.CacheSize)
	assert.Equal(t, "voice_engine", cfg.Metrics.Namespace)
}

func TestLoadConfig_Explicit(t *testing.T) {
	path := writeConfig(t, `
realtime:
  api_key: sk-test
  model: gpt-4o-realtime-preview-2024-12-17
  voice: alloy
  default_instructions: "You are a helpful voice agent."
audio:
  capture_sample_rate: 16000
  frame_size: 2048
  wire_codec: opus
  opus_bitrate: 24000
session:
  coalesce_timeout_ms: 300
limits:
  rules:
    speech_frames:
      window_ms: 1000
      max: 50
tools:
  - name: show_images
    description: Display product images.
    parameters:
      type: object
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Realtime.APIKey)
	assert.Equal(t, "alloy", cfg.Realtime.Voice)
	assert.Equal(t, 16_000, cfg.Audio.CaptureSampleRate)
	assert.Equal(t, 2048, cfg.Audio.FrameSize)
	assert.Equal(t, "opus", cfg.Audio.WireCodec)
	assert.Equal(t, 24_000, cfg.Audio.OpusBitrate)
	assert.Equal(t, 300, cfg.Session.CoalesceTimeoutMs)
	require.Contains(t, cfg.Limits.Rules, "speech_frames")
	assert.Equal(t, 50, cfg.Limits.Rules["speech_frames"].Max)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "show_images", cfg.Tools[0].Name)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]struct {
		yaml string
	}{
		"unknown_codec": {
			yaml: "audio:\n  wire_codec: flac\n",
		},
		"bad_limit_rule": {
			yaml: "limits:\n  rules:\n    speech_frames:\n      window_ms: 0\n      max: 10\n",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := config.LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
