package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/squawkbox/internal/config"
	"github.com/MrWong99/squawkbox/internal/discovery"
)

// newProbeCmd scans for the speech gateway from this machine, without
// needing a running daemon.
func newProbeCmd(configPath *string) *cobra.Command {
	var (
		host    string
		quick   bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "scan the local network for the speech gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				// The probe works fine without a config file; fall back to
				// defaults and only honor an explicit --host.
				cfg = config.Default()
			}

			override := host
			if override == "" {
				override = cfg.Gateway.HostOverride
			}
			overrideHost, overridePort := discovery.ParseOverride(override)

			hosts := discovery.Candidates(overrideHost, discovery.SystemGateway())
			if len(hosts) == 0 {
				return fmt.Errorf("no candidate hosts")
			}

			prober := discovery.NewProber(
				discovery.WithTimeouts(cfg.Gateway.ProbeTimeout.Std(), cfg.Gateway.QuickProbeTimeout.Std()),
			)
			found, summary := prober.Probe(cmd.Context(), hosts, overridePort, quick, verbose)
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			for _, line := range prober.DiagLines() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if !found {
				return fmt.Errorf("no gateway answered")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "probe only this host (host or host:port)")
	cmd.Flags().BoolVar(&quick, "quick", false, "short timeouts and the reduced path list")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "detailed per-attempt lines")
	return cmd
}
