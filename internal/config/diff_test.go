package config_test

import (
	"testing"

	"github.com/MrWong99/squawkbox/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	d := config.Diff(old, new)
	if d.LogLevelChanged || d.GatewayChanged || d.MirrorsChanged {
		t.Errorf("diff of identical configs = %+v, want empty", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
}

func TestDiff_Gateway(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Gateway.HostOverride = "10.0.0.7:8001"

	d := config.Diff(old, new)
	if !d.GatewayChanged || d.NewGateway != "10.0.0.7:8001" {
		t.Errorf("diff = %+v, want gateway change", d)
	}
}

func TestDiff_Mirrors(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Mirrors.Secondary = []string{"https://example.com/a.wav"}

	d := config.Diff(old, new)
	if !d.MirrorsChanged {
		t.Errorf("diff = %+v, want mirrors change", d)
	}
}
