package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/remotecapture/internal/audio"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the last recording",
	Long: `Play the recording artifact using the configured player, or the first
of ffplay, mpv, vlc, afplay or aplay found on PATH.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.ArtifactPath()
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("no recording to play at %s", path)
		}

		fmt.Printf("Playing: %s\n", path)
		if err := audio.NewPlayer(cfg).Play(path); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}
