package audio

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/remotecapture/internal/config"
)

// FFmpegRecorder implements Recorder by running an ffmpeg capture process
type FFmpegRecorder struct {
	cfg config.RecordingConfig

	mutex  sync.Mutex
	status Status
	dest   string

	// FFmpeg process
	ffmpegCmd *exec.Cmd
	stderrBuf strings.Builder
	outputWG  sync.WaitGroup

	// overridable in tests
	command string
}

// NewFFmpegRecorder creates a new ffmpeg-based recorder
func NewFFmpegRecorder(cfg config.RecordingConfig) *FFmpegRecorder {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &FFmpegRecorder{
		cfg:     cfg,
		status:  StatusStandby,
		command: "ffmpeg",
	}
}

// Start begins capturing into dest, overwriting any previous file
func (r *FFmpegRecorder) Start(dest string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.status == StatusRecording {
		return fmt.Errorf("%w: already recording to %s", ErrCapture, r.dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		r.status = StatusError
		return fmt.Errorf("%w: failed to create output directory: %w", ErrCapture, err)
	}

	args := r.buildArgs(dest)
	slog.Info("Starting FFmpeg capture", "command", r.command+" "+strings.Join(args, " "))

	cmd := exec.Command(r.command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.status = StatusError
		return fmt.Errorf("%w: failed to create stdout pipe: %w", ErrCapture, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.status = StatusError
		return fmt.Errorf("%w: failed to create stderr pipe: %w", ErrCapture, err)
	}

	if err := cmd.Start(); err != nil {
		r.status = StatusError
		return fmt.Errorf("%w: failed to start FFmpeg: %w", ErrCapture, err)
	}

	r.ffmpegCmd = cmd
	r.dest = dest
	r.stderrBuf.Reset()
	r.status = StatusRecording

	r.outputWG.Add(2)
	go r.readOutput(stdout, nil, "stdout")
	go r.readOutput(stderr, &r.stderrBuf, "stderr")

	slog.Info("Recording started", "output", dest)
	return nil
}

// buildArgs constructs the ffmpeg arguments for a single capture to dest
func (r *FFmpegRecorder) buildArgs(dest string) []string {
	logLevel := os.Getenv("FFMPEG_LOGLEVEL")
	if logLevel == "" {
		logLevel = "warning"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", logLevel,
		"-f", r.cfg.InputFormat,
		"-i", r.cfg.InputDevice,
		"-ac", fmt.Sprintf("%d", r.cfg.Channels),
		"-ar", fmt.Sprintf("%d", r.cfg.SampleRate),
	}
	if r.cfg.Codec != "" {
		args = append(args, "-c:a", r.cfg.Codec)
	}
	args = append(args,
		"-y", // Overwrite output
		dest,
	)
	return args
}

// readOutput reads from a pipe and optionally buffers output
func (r *FFmpegRecorder) readOutput(pipe io.ReadCloser, buffer *strings.Builder, label string) {
	defer r.outputWG.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if buffer != nil {
			buffer.WriteString(line + "\n")
		}
		slog.Debug("FFmpeg output", "stream", label, "line", line)
	}
}

// Stop ends the capture and waits for ffmpeg to finalize the file
func (r *FFmpegRecorder) Stop() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.status != StatusRecording {
		return fmt.Errorf("%w: no recording in progress", ErrCapture)
	}

	slog.Debug("Stopping FFmpeg capture...")

	if err := r.stopFFmpeg(); err != nil {
		r.status = StatusError
		return fmt.Errorf("%w: failed to stop FFmpeg: %w", ErrCapture, err)
	}

	if _, err := os.Stat(r.dest); err != nil {
		r.status = StatusError
		return fmt.Errorf("%w: recording file not found: %s", ErrCapture, r.dest)
	}

	r.status = StatusStandby
	slog.Info("Recording stopped", "output", r.dest)
	return nil
}

// stopFFmpeg interrupts ffmpeg so it writes the container trailer, killing it after the timeout
func (r *FFmpegRecorder) stopFFmpeg() error {
	if r.ffmpegCmd == nil {
		return nil
	}

	if r.ffmpegCmd.Process != nil {
		slog.Debug("Sending SIGINT to FFmpeg process")
		if err := r.ffmpegCmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt to FFmpeg, falling back to SIGKILL", "error", err)
			r.ffmpegCmd.Process.Kill()
		}
	}

	done := make(chan error, 1)
	go func() {
		r.outputWG.Wait()
		done <- r.ffmpegCmd.Wait()
	}()

	select {
	case err := <-done:
		r.ffmpegCmd = nil
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				// 255 is ffmpeg's exit code after a handled interrupt
				if exitErr.ExitCode() == 255 {
					return nil
				}
				if exitErr.ProcessState != nil {
					stateStr := exitErr.ProcessState.String()
					if stateStr == "signal: interrupt" || stateStr == "signal: killed" {
						return nil
					}
				}
			}
			slog.Debug("FFmpeg stderr", "output", r.stderrBuf.String())
			return fmt.Errorf("FFmpeg process failed: %w", err)
		}
		return nil

	case <-time.After(r.cfg.StopTimeout):
		slog.Warn("FFmpeg did not exit within timeout, force killing", "timeout", r.cfg.StopTimeout)
		if r.ffmpegCmd.Process != nil {
			r.ffmpegCmd.Process.Kill()
		}
		<-done
		r.ffmpegCmd = nil
		return nil
	}
}

// Status returns the current recorder status
func (r *FFmpegRecorder) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status
}
