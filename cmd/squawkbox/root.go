package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/squawkbox/internal/config"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "squawkbox",
		Short:        "companion-pet voice daemon",
		Long:         "Squawkbox speaks for a companion pet: it discovers the speech gateway on the local network, streams synthesized audio, and falls back to mirrored clips or procedural chirps when the network lets it down.",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(&configPath),
		newSpeakCmd(),
		newProbeCmd(&configPath),
	)
	return root
}

// newLogger builds the process logger. The returned LevelVar lets the config
// watcher change verbosity without rebuilding the handler chain.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(level.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	return logger, lvl
}
