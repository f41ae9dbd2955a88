package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newSpeakCmd submits a speech request to a running daemon.
func newSpeakCmd() *cobra.Command {
	var (
		addr   string
		tone   string
		affect string
		quick  bool
		rate   float64
	)

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "ask a running daemon to speak",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]any{
				"text":       strings.Join(args, " "),
				"tone":       tone,
				"quick":      quick,
				"rate_scale": rate,
				"affect":     affect,
			})
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Post("http://"+addr+"/v1/speak", "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("reaching daemon at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			switch resp.StatusCode {
			case http.StatusAccepted:
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
				return nil
			case http.StatusServiceUnavailable:
				return fmt.Errorf("daemon queue is full")
			default:
				return fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8090", "daemon address")
	cmd.Flags().StringVar(&tone, "tone", "default", "voice channel (default or secondary)")
	cmd.Flags().StringVar(&affect, "affect", "", "procedural fallback mood (sad or happy)")
	cmd.Flags().BoolVar(&quick, "quick", false, "single fast attempt instead of the full endpoint matrix")
	cmd.Flags().Float64Var(&rate, "rate", 0, "playback speed multiplier (0 uses the daemon default)")
	return cmd
}
