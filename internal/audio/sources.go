package audio

import (
	"fmt"
	"os/exec"
	"strings"
)

// InputDevice is one capture source reported by the sound server
type InputDevice struct {
	Index  string
	Name   string
	Driver string
	State  string
}

// Monitor sources capture playback, not a microphone
func (d InputDevice) Monitor() bool {
	return strings.HasSuffix(d.Name, ".monitor")
}

// ListInputDevices returns capture sources via pactl (PulseAudio or PipeWire-Pulse)
func ListInputDevices() ([]InputDevice, error) {
	cmd := exec.Command("pactl", "list", "short", "sources")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}
	return parseSources(string(output)), nil
}

// parseSources parses `pactl list short sources` output:
// index, name, driver, sample spec, state separated by tabs
func parseSources(output string) []InputDevice {
	var devices []InputDevice
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			fields = strings.Fields(line)
		}
		if len(fields) < 2 {
			continue
		}

		device := InputDevice{Index: fields[0], Name: fields[1]}
		if len(fields) > 2 {
			device.Driver = fields[2]
		}
		if len(fields) > 4 {
			device.State = fields[4]
		}
		devices = append(devices, device)
	}
	return devices
}
