package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the overlay reads,
// e.g. SQUAWKBOX_GATEWAY_HOST.
const EnvPrefix = "SQUAWKBOX_"

// Load reads the YAML configuration file at path, applies the environment
// overlay, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults, applies the
// environment overlay, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays SQUAWKBOX_* environment variables onto cfg. Environment
// values win over the file so deployments can pin the gateway or crank log
// verbosity without editing YAML.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment overlay: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if d := cfg.Gateway.EndpointTimeout; d < 0 {
		errs = append(errs, fmt.Errorf("gateway.endpoint_timeout %s is negative", d.Std()))
	}
	if d := cfg.Gateway.RetryDelay; d < 0 {
		errs = append(errs, fmt.Errorf("gateway.retry_delay %s is negative", d.Std()))
	}
	if d := cfg.Gateway.ProbeTimeout; d < 0 {
		errs = append(errs, fmt.Errorf("gateway.probe_timeout %s is negative", d.Std()))
	}
	if d := cfg.Gateway.QuickProbeTimeout; d < 0 {
		errs = append(errs, fmt.Errorf("gateway.quick_probe_timeout %s is negative", d.Std()))
	}
	if d := cfg.Gateway.StallTimeout; d < 0 {
		errs = append(errs, fmt.Errorf("gateway.stall_timeout %s is negative", d.Std()))
	}
	if d := cfg.Mirrors.HeaderTimeout; d < 0 {
		errs = append(errs, fmt.Errorf("mirrors.header_timeout %s is negative", d.Std()))
	}

	if rs := cfg.Audio.RateScale; rs != 0 && (rs < 0.25 || rs > 4) {
		errs = append(errs, fmt.Errorf("audio.rate_scale %.2f is out of range [0.25, 4]", rs))
	}
	if cfg.Audio.Sink == "" {
		errs = append(errs, errors.New("audio.sink is required"))
	}

	// Soft issues only get a warning: the daemon still works, just with a
	// shorter fallback chain.
	if len(cfg.Mirrors.Default) == 0 {
		slog.Warn("mirrors.default is empty; the mirror tier is disabled for the default tone")
	}
	if cfg.Gateway.HostOverride != "" {
		slog.Info("gateway discovery disabled by host override", "host", cfg.Gateway.HostOverride)
	}

	return errors.Join(errs...)
}
