package audio

import (
	"errors"

	"github.com/audiolibrelab/remotecapture/internal/config"
)

var (
	// ErrCapture marks recorder setup, start and stop failures
	ErrCapture = errors.New("capture error")
	// ErrPlayback marks failures to open or play the artifact
	ErrPlayback = errors.New("playback error")
)

// Status represents the current state of the recorder
type Status string

const (
	StatusStandby   Status = "STANDBY"
	StatusRecording Status = "RECORDING"
	StatusError     Status = "ERROR"
)

// Recorder captures the microphone into a destination file.
// The encoding is left entirely to the implementation.
type Recorder interface {
	Start(dest string) error
	Stop() error
	Status() Status
}

// Player plays an audio file. Play returns once playback has started.
type Player interface {
	Play(path string) error
}

// NewRecorder creates the capture backend for the configuration
func NewRecorder(cfg *config.Config) Recorder {
	return NewFFmpegRecorder(cfg.Recording)
}

// NewPlayer creates the playback backend for the configuration
func NewPlayer(cfg *config.Config) Player {
	return NewCommandPlayer(cfg.Playback.Player)
}
