package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GatewayChanged is true when the host override changed; the engine can
	// re-point without a restart.
	GatewayChanged bool
	NewGateway     string

	// MirrorsChanged is true when either tone's mirror list changed.
	MirrorsChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Gateway.HostOverride != new.Gateway.HostOverride {
		d.GatewayChanged = true
		d.NewGateway = new.Gateway.HostOverride
	}

	if !slices.Equal(old.Mirrors.Default, new.Mirrors.Default) ||
		!slices.Equal(old.Mirrors.Secondary, new.Mirrors.Secondary) {
		d.MirrorsChanged = true
	}

	return d
}
