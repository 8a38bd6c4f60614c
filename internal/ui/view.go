package ui

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/remotecapture/internal/controller"
)

// Buttons is which of the three triggers are enabled
type Buttons struct {
	Start bool `json:"start"`
	Stop  bool `json:"stop"`
	Play  bool `json:"play"`
}

// ButtonsFor derives trigger availability from a controller snapshot
func ButtonsFor(s controller.Snapshot) Buttons {
	recording := s.State == controller.StateRecording
	return Buttons{
		Start: !recording,
		Stop:  recording,
		Play:  s.ArtifactExists,
	}
}

// Render draws the button row as one line of text, disabled buttons bracketed
func Render(s controller.Snapshot) string {
	b := ButtonsFor(s)
	label := func(name string, enabled bool) string {
		if enabled {
			return " " + name + " "
		}
		return "[" + name + "]"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-9s", s.State)
	sb.WriteString(label("Start Recording", b.Start))
	sb.WriteString(" ")
	sb.WriteString(label("Stop Recording", b.Stop))
	sb.WriteString(" ")
	sb.WriteString(label("Play Recording", b.Play))
	return sb.String()
}
