package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/remotecapture/internal/service"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect to the command server and record on request",
	Long: `Connect to the configured WebSocket command server and wait for
startRecording / stopRecording commands. Each stop uploads the recording
to the configured upload URL.

A terminal console accepts start, stop, play and status while listening.
Use --panel to also expose the controls over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		noConsole, _ := cmd.Flags().GetBool("no-console")
		panel, _ := cmd.Flags().GetBool("panel")
		panelPort, _ := cmd.Flags().GetString("panel-port")

		if panel {
			cfg.Panel.Enabled = true
		}
		if panelPort != "" {
			cfg.Panel.Port = panelPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := service.New(cfg, service.Options{
			Console: !noConsole,
			In:      os.Stdin,
			Out:     os.Stdout,
		})

		slog.Info("Listening for commands", "url", cfg.Channel.URL, "profile", cfg.Profile)
		if err := svc.Run(ctx); err != nil {
			return fmt.Errorf("listen failed: %w", err)
		}

		slog.Info("Stopped", "recording", svc.GetRecordingStatus().StateName)
		return nil
	},
}

func init() {
	listenCmd.Flags().Bool("no-console", false, "do not read commands from the terminal")
	listenCmd.Flags().Bool("panel", false, "serve the HTTP control panel")
	listenCmd.Flags().String("panel-port", "", "port for the HTTP control panel (overrides config)")
}
