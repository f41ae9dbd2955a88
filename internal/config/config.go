// Package config provides the configuration schema, loader, environment
// overlay, and audio sink registry for the Squawkbox daemon.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Squawkbox daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the slog level scale. Unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Duration is a time.Duration that unmarshals from YAML strings like "140ms"
// or "2.2s".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the root configuration structure for Squawkbox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Mirrors MirrorsConfig `yaml:"mirrors"`
	Audio   AudioConfig   `yaml:"audio"`
	Effects EffectsConfig `yaml:"effects"`
}

// ServerConfig holds network and logging settings for the diagnostic server.
type ServerConfig struct {
	// ListenAddr is the TCP address the diagnostic server listens on.
	ListenAddr string `yaml:"listen_addr" env:"SERVER_LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`
}

// GatewayConfig tunes discovery and dispatch against the speech gateway.
type GatewayConfig struct {
	// HostOverride pins the gateway to a host or host:port instead of
	// discovering it. Empty means discover.
	HostOverride string `yaml:"host_override" env:"GATEWAY_HOST"`

	// EndpointTimeout bounds each speech request.
	EndpointTimeout Duration `yaml:"endpoint_timeout"`

	// RetryDelay is the pause between failed dispatch attempts.
	RetryDelay Duration `yaml:"retry_delay"`

	// ProbeTimeout bounds each probe GET in normal mode.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// QuickProbeTimeout bounds each probe GET in quick mode.
	QuickProbeTimeout Duration `yaml:"quick_probe_timeout"`

	// StallTimeout bounds each individual read on a live audio stream.
	StallTimeout Duration `yaml:"stall_timeout"`
}

// MirrorsConfig lists the pre-recorded clip URLs tried when the gateway tier
// fails, and the pacing between attempts.
type MirrorsConfig struct {
	// Default are the mirror URLs for the default tone, tried in order.
	Default []string `yaml:"default"`

	// Secondary are the mirror URLs for the secondary tone.
	Secondary []string `yaml:"secondary"`

	// FirstDelay is the pause before the first mirror attempt.
	FirstDelay Duration `yaml:"first_delay"`

	// Gap is the pause between mirror attempts.
	Gap Duration `yaml:"gap"`

	// HeaderTimeout bounds connect and response headers on each mirror
	// fetch. The clip body streams untimed.
	HeaderTimeout Duration `yaml:"header_timeout"`
}

// AudioConfig selects and tunes the playback sink.
type AudioConfig struct {
	// Sink names the registered audio sink implementation (e.g. "oto").
	Sink string `yaml:"sink" env:"AUDIO_SINK"`

	// RateScale is a global playback speed multiplier in [0.25, 4].
	RateScale float64 `yaml:"rate_scale"`
}

// EffectsConfig toggles the optional DSP filter pipeline.
type EffectsConfig struct {
	// Robot applies the robot-voice effect chain to played audio.
	Robot bool `yaml:"robot" env:"EFFECTS_ROBOT"`
}

// Default returns a Config with the built-in defaults; loaders decode YAML
// over it so absent keys keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8090",
			LogLevel:   LogInfo,
		},
		Gateway: GatewayConfig{
			EndpointTimeout:   Duration(6 * time.Second),
			RetryDelay:        Duration(140 * time.Millisecond),
			ProbeTimeout:      Duration(2200 * time.Millisecond),
			QuickProbeTimeout: Duration(750 * time.Millisecond),
			StallTimeout:      Duration(15 * time.Second),
		},
		Mirrors: MirrorsConfig{
			Default: []string{
				"https://raw.githubusercontent.com/pdx-cs-sound/wavs/main/voice-note.wav",
				"https://cdn.jsdelivr.net/gh/pdx-cs-sound/wavs@main/voice-note.wav",
			},
			Secondary: []string{
				"https://raw.githubusercontent.com/pdx-cs-sound/wavs/main/overdrive.wav",
				"https://cdn.jsdelivr.net/gh/pdx-cs-sound/wavs@main/overdrive.wav",
			},
			FirstDelay:    Duration(5 * time.Second),
			Gap:           Duration(350 * time.Millisecond),
			HeaderTimeout: Duration(15 * time.Second),
		},
		Audio: AudioConfig{
			Sink:      "oto",
			RateScale: 1.0,
		},
	}
}
