package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/remotecapture/internal/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a recording to the server",
	Long: `Upload the last recording (or the given file) as multipart/form-data
to the configured upload URL and wait for the server to answer.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if url, _ := cmd.Flags().GetString("url"); url != "" {
			cfg.Upload.URL = url
		}

		path := cfg.ArtifactPath()
		if len(args) == 1 {
			path = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		artifact := upload.Artifact{Path: path, SessionID: uuid.NewString()}
		if err := upload.New(cfg.Upload).Upload(ctx, artifact); err != nil {
			return err
		}

		fmt.Printf("Uploaded %s to %s\n", path, cfg.Upload.URL)
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("url", "", "upload URL (overrides config)")
}
