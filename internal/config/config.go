package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RealtimeConfig stores remote-endpoint specific configuration.
type RealtimeConfig struct {
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	Voice               string `yaml:"voice"`
	VADMode             string `yaml:"vad_mode"`
	DefaultInstructions string `yaml:"default_instructions"`
}

// AudioConfig stores capture, wire and playback format settings.
type AudioConfig struct {
	CaptureSampleRate  int    `yaml:"capture_sample_rate"`
	CaptureChannels    int    `yaml:"capture_channels"`
	FrameSize          int    `yaml:"frame_size"`
	WireSampleRate     int    `yaml:"wire_sample_rate"`
	WireCodec          string `yaml:"wire_codec"` // "pcm16" or "opus"
	OpusBitrate        int    `yaml:"opus_bitrate"`
	OpusFrameSize      int    `yaml:"opus_frame_size"`
	PlaybackSampleRate int    `yaml:"playback_sample_rate"`
	PlaybackChannels   int    `yaml:"playback_channels"`
}

// SessionConfig stores session lifecycle settings. Zero timeouts disable the
// corresponding watchdog check.
type SessionConfig struct {
	CoalesceTimeoutMs    int `yaml:"coalesce_timeout_ms"`
	MaxSessionLengthMin  int `yaml:"max_session_length_min"`
	InactivityTimeoutSec int `yaml:"inactivity_timeout_sec"`
}

// LimitRule bounds how often an action may occur within a window.
type LimitRule struct {
	WindowMs int `yaml:"window_ms"`
	Max      int `yaml:"max"`
}

// LimitsConfig stores per-kind rate limit rules and limiter sizing.
type LimitsConfig struct {
	CacheSize int                  `yaml:"cache_size"`
	Rules     map[string]LimitRule `yaml:"rules"`
}

// MetricsConfig stores metrics exposition settings.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// ToolConfig declares a tool the remote endpoint may invoke mid-session.
// Parameters is a JSON-schema-shaped document passed through verbatim.
type ToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// Config stores the application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Audio    AudioConfig    `yaml:"audio"`
	Session  SessionConfig  `yaml:"session"`
	Limits   LimitsConfig   `yaml:"limits"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tools    []ToolConfig   `yaml:"tools"`
}

// LoadConfig loads the configuration from the given file path, applies
// defaults and validates it.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Realtime.Model == "" {
		c.Realtime.Model = "gpt-4o-realtime-preview"
	}
	if c.Realtime.Voice == "" {
		c.Realtime.Voice = "shimmer"
	}
	if c.Realtime.VADMode == "" {
		c.Realtime.VADMode = "server_vad"
	}
	if c.Audio.CaptureSampleRate == 0 {
		c.Audio.CaptureSampleRate = 48_000
	}
	if c.Audio.CaptureChannels == 0 {
		c.Audio.CaptureChannels = 1
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = 4096
	}
	if c.Audio.WireSampleRate == 0 {
		c.Audio.WireSampleRate = 24_000
	}
	if c.Audio.WireCodec == "" {
		c.Audio.WireCodec = "pcm16"
	}
	if c.Audio.OpusBitrate == 0 {
		c.Audio.OpusBitrate = 32_000
	}
	if c.Audio.OpusFrameSize == 0 {
		c.Audio.OpusFrameSize = 480 // 20ms at 24kHz
	}
	if c.Audio.PlaybackSampleRate == 0 {
		c.Audio.PlaybackSampleRate = 24_000
	}
	if c.Audio.PlaybackChannels == 0 {
		c.Audio.PlaybackChannels = 1
	}
	if c.Session.CoalesceTimeoutMs == 0 {
		c.Session.CoalesceTimeoutMs = 500
	}
	if c.Limits.CacheSize == 0 {
		c.Limits.CacheSize = 1024
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "voice_engine"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Audio.WireCodec {
	case "pcm16", "opus":
	default:
		return fmt.Errorf("unknown wire codec %q", c.Audio.WireCodec)
	}
	if c.Audio.FrameSize < 0 || c.Audio.CaptureSampleRate < 0 {
		return fmt.Errorf("audio settings must be non-negative")
	}
	for name, rule := range c.Limits.Rules {
		if rule.WindowMs <= 0 || rule.Max <= 0 {
			return fmt.Errorf("limit rule %q needs positive window_ms and max", name)
		}
	}
	return nil
}
