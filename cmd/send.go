package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/remotecapture/internal/channel"
)

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a text message on the command channel",
	Long: `Connect to the command server, send one text frame and disconnect.
Useful to drive another listening client, for example:

  remotecapture send startRecording`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch := channel.New(cfg.Channel.URL, channel.WithHandshakeTimeout(cfg.Channel.HandshakeTimeout))
		if err := ch.Connect(context.Background()); err != nil {
			return err
		}
		defer ch.Close()

		text := strings.Join(args, " ")
		ch.Send(text)
		fmt.Printf("Sent %q to %s\n", text, cfg.Channel.URL)
		return nil
	},
}
