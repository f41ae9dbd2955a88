package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/MrWong99/squawkbox/internal/config"
	"gopkg.in/yaml.v3"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("bananas").IsValid() {
		t.Error("bananas should not be a valid log level")
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	cases := map[config.LogLevel]slog.Level{
		config.LogDebug:       slog.LevelDebug,
		config.LogInfo:        slog.LevelInfo,
		config.LogWarn:        slog.LevelWarn,
		config.LogError:       slog.LevelError,
		config.LogLevel("??"): slog.LevelInfo,
	}
	for in, want := range cases {
		if got := in.Slog(); got != want {
			t.Errorf("%q.Slog() = %v, want %v", in, got, want)
		}
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Parallel()
	var d config.Duration
	if err := yaml.Unmarshal([]byte(`140ms`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Std() != 140*time.Millisecond {
		t.Errorf("d = %s, want 140ms", d.Std())
	}
	if err := yaml.Unmarshal([]byte(`soon`), &d); err == nil {
		t.Error("expected error for non-duration string, got nil")
	}
}

func TestDefault_Values(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("listen_addr = %q, want :8090", cfg.Server.ListenAddr)
	}
	if cfg.Gateway.RetryDelay.Std() != 140*time.Millisecond {
		t.Errorf("retry_delay = %s, want 140ms", cfg.Gateway.RetryDelay.Std())
	}
	if cfg.Gateway.ProbeTimeout.Std() != 2200*time.Millisecond {
		t.Errorf("probe_timeout = %s, want 2.2s", cfg.Gateway.ProbeTimeout.Std())
	}
	if len(cfg.Mirrors.Default) != 2 || len(cfg.Mirrors.Secondary) != 2 {
		t.Errorf("mirror lists = %d/%d entries, want 2/2", len(cfg.Mirrors.Default), len(cfg.Mirrors.Secondary))
	}
	if cfg.Audio.Sink != "oto" || cfg.Audio.RateScale != 1.0 {
		t.Errorf("audio defaults = %+v, want oto at rate 1.0", cfg.Audio)
	}
}
