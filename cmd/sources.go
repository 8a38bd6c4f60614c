package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/remotecapture/internal/audio"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio input devices",
	Long:  `List the capture sources reported by PulseAudio or PipeWire-Pulse (pactl).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audio.ListInputDevices()
		if err != nil {
			return err
		}

		fmt.Printf("🎵 Audio Input Devices (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		var monitors int
		for _, device := range devices {
			if device.Monitor() {
				monitors++
				continue
			}
			fmt.Printf("  %s. %s [%s]\n", device.Index, device.Name, device.State)
		}
		if monitors > 0 {
			fmt.Printf("\n  (%d monitor sources hidden)\n", monitors)
		}

		fmt.Printf("\n💡 Usage:\n")
		fmt.Printf("  • Configure recording.input_device with a name above\n")
		fmt.Printf("  • Example: input_device: \"alsa_input.usb-Focusrite_Scarlett_2i2-00.analog-stereo\"\n\n")
		return nil
	},
}
