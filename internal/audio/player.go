package audio

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// preferred audio players, in order
var defaultPlayers = []string{"ffplay", "mpv", "vlc", "afplay", "aplay"}

// CommandPlayer plays files through an external CLI player
type CommandPlayer struct {
	player   string
	lookPath func(string) (string, error)
}

// NewCommandPlayer creates a player; an empty name picks the first one installed
func NewCommandPlayer(player string) *CommandPlayer {
	return &CommandPlayer{
		player:   player,
		lookPath: exec.LookPath,
	}
}

// Play starts playback of path and returns; completion is logged in the background
func (p *CommandPlayer) Play(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: audio file not found: %s", ErrPlayback, path)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("%w: no suitable audio player found: %w", ErrPlayback, err)
	}

	args, err := playerArgs(player, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}

	cmd := exec.Command(player, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: playback failed with %s: %w", ErrPlayback, player, err)
	}

	slog.Info("Playback started", "player", player, "file", path)

	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Error("Playback failed", "player", player, "error", err)
			return
		}
		slog.Debug("Playback completed", "player", player)
	}()

	return nil
}

func playerArgs(player, audioFile string) ([]string, error) {
	switch player {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", audioFile}, nil
	case "mpv":
		return []string{"--no-video", audioFile}, nil
	case "vlc":
		return []string{"--intf", "dummy", "--play-and-exit", audioFile}, nil
	case "afplay":
		return []string{audioFile}, nil
	case "aplay":
		// aplay only understands WAV
		if !strings.HasSuffix(strings.ToLower(audioFile), ".wav") {
			return nil, fmt.Errorf("aplay requires WAV format: %s", audioFile)
		}
		return []string{audioFile}, nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}
}

func (p *CommandPlayer) findAudioPlayer() (string, error) {
	if p.player != "" {
		if _, err := p.lookPath(p.player); err != nil {
			return "", fmt.Errorf("configured player %s not found: %w", p.player, err)
		}
		return p.player, nil
	}

	for _, player := range defaultPlayers {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(defaultPlayers, ", "))
}
