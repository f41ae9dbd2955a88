package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/squawkbox/internal/config"
	"github.com/MrWong99/squawkbox/internal/diag"
	"github.com/MrWong99/squawkbox/internal/discovery"
	"github.com/MrWong99/squawkbox/internal/dispatch"
	"github.com/MrWong99/squawkbox/internal/effects"
	"github.com/MrWong99/squawkbox/internal/observe"
	"github.com/MrWong99/squawkbox/internal/playback"
	"github.com/MrWong99/squawkbox/internal/voice"
	"github.com/MrWong99/squawkbox/pkg/audio"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the voice daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading %q: %w", configPath, err)
	}

	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "squawkbox",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initialising telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinSinks(reg)

	sink, err := reg.CreateSink(cfg.Audio)
	if err != nil {
		return fmt.Errorf("creating audio sink: %w", err)
	}
	defer sink.Close()

	var playOpts []playback.Option
	if cfg.Effects.Robot {
		playOpts = append(playOpts, playback.WithFilter(robotFilter()))
		slog.Info("robot voice effect enabled")
	}
	play := playback.New(sink, playOpts...)

	prober := discovery.NewProber(
		discovery.WithLogger(logger),
		discovery.WithMetrics(metrics),
		discovery.WithTimeouts(cfg.Gateway.ProbeTimeout.Std(), cfg.Gateway.QuickProbeTimeout.Std()),
	)

	eng := voice.New(play,
		voice.WithLogger(logger),
		voice.WithMetrics(metrics),
		voice.WithProber(prober),
		voice.WithMirrors(voice.ToneDefault, cfg.Mirrors.Default...),
		voice.WithMirrors(voice.ToneSecondary, cfg.Mirrors.Secondary...),
		voice.WithMirrorDelays(cfg.Mirrors.FirstDelay.Std(), cfg.Mirrors.Gap.Std()),
		voice.WithMirrorHeaderTimeout(cfg.Mirrors.HeaderTimeout.Std()),
		voice.WithStallTimeout(cfg.Gateway.StallTimeout.Std()),
		voice.WithDispatchOptions(
			dispatch.WithTimeout(cfg.Gateway.EndpointTimeout.Std()),
			dispatch.WithRetryDelay(cfg.Gateway.RetryDelay.Std()),
		),
	)
	if cfg.Gateway.HostOverride != "" {
		host, port := eng.SetGatewayOverride(cfg.Gateway.HostOverride)
		slog.Info("gateway pinned by config", "host", host, "port", port)
	}

	// The engine exists now, so reloads can safely re-point it.
	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		applyReload(config.Diff(old, new), eng, logLevel)
	})
	if err != nil {
		return fmt.Errorf("watching %q: %w", configPath, err)
	}
	defer watcher.Stop()

	server := diag.New(eng,
		diag.WithLogger(logger),
		diag.WithMetrics(metrics),
		diag.WithDefaultRate(cfg.Audio.RateScale),
	)
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("squawkbox starting",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"sink", cfg.Audio.Sink,
		"log_level", cfg.Server.LogLevel,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := eng.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("voice engine: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// applyReload pushes hot-reloadable config changes into the running daemon.
func applyReload(d config.ConfigDiff, eng *voice.Engine, lvl *slog.LevelVar) {
	if d.LogLevelChanged && lvl != nil {
		lvl.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GatewayChanged && eng != nil {
		raw := d.NewGateway
		if raw == "" {
			raw = "clear"
		}
		host, port := eng.SetGatewayOverride(raw)
		slog.Info("gateway override changed", "host", host, "port", port)
	}
	if d.MirrorsChanged {
		slog.Warn("mirror list changed on disk; restart to apply")
	}
}

// registerBuiltinSinks wires the audio sink implementations that ship with
// the daemon.
func registerBuiltinSinks(reg *config.Registry) {
	reg.RegisterSink("oto", func(config.AudioConfig) (playback.Sink, error) {
		return playback.NewOtoSink()
	})
}

// robotFilter adapts the chunked robot-voice processor to the playback
// engine's byte-level filter hook. The carrier is tuned for the 22.05 kHz
// streams the gateway serves; other rates shift the ring-mod frequency
// proportionally.
func robotFilter() playback.Filter {
	proc := effects.NewProcessor(22050)
	return func(pcm []byte) []byte {
		return audio.Int16ToBytes(proc.Apply(audio.BytesToInt16(pcm)))
	}
}
