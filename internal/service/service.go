package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/remotecapture/internal/audio"
	"github.com/audiolibrelab/remotecapture/internal/channel"
	"github.com/audiolibrelab/remotecapture/internal/config"
	"github.com/audiolibrelab/remotecapture/internal/controller"
	"github.com/audiolibrelab/remotecapture/internal/server"
	"github.com/audiolibrelab/remotecapture/internal/ui"
	"github.com/audiolibrelab/remotecapture/internal/upload"
)

// Service represents the remote recording client
type Service interface {
	// Run connects the command channel and serves commands until ctx is cancelled
	Run(ctx context.Context) error

	// Status operations
	GetRecordingStatus() controller.Snapshot
	GetConnectionState() channel.State
	GetConfig() *config.Config
}

// Options tunes which surfaces run next to the command channel
type Options struct {
	// Console enables the terminal Start/Stop/Play surface on In/Out
	Console bool
	In      io.Reader
	Out     io.Writer

	// Recorder and Player replace the configured backends when set
	Recorder audio.Recorder
	Player   audio.Player
}

// RemoteCaptureService is the main service implementation
type RemoteCaptureService struct {
	cfg  *config.Config
	opts Options

	channel    *channel.Channel
	controller *controller.Controller
	uploader   *upload.Uploader
	loop       *ui.Loop
}

// New wires the command channel, controller, uploader and UI loop
func New(cfg *config.Config, opts Options) Service {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = audio.NewRecorder(cfg)
	}
	player := opts.Player
	if player == nil {
		player = audio.NewPlayer(cfg)
	}

	uploader := upload.New(cfg.Upload)
	ctrl := controller.New(cfg.ArtifactPath(), recorder, player, uploader)
	loop := ui.NewLoop(64)
	ch := channel.New(cfg.Channel.URL, channel.WithHandshakeTimeout(cfg.Channel.HandshakeTimeout))

	s := &RemoteCaptureService{
		cfg:        cfg,
		opts:       opts,
		channel:    ch,
		controller: ctrl,
		uploader:   uploader,
		loop:       loop,
	}

	ch.OnMessage(s.dispatch)

	if cfg.Channel.ReportStatus {
		ctrl.Subscribe(func(snapshot controller.Snapshot) {
			ch.Send("recording:" + snapshot.State.String())
		})
	}

	return s
}

// dispatch marshals a received command onto the UI loop
func (s *RemoteCaptureService) dispatch(text string) {
	if !s.loop.Post(func() { s.controller.HandleCommand(text) }) {
		slog.Warn("Dropping command received during shutdown", "text", text)
	}
}

// Run starts every component and blocks until ctx is cancelled.
// A command channel failure is logged; the client keeps serving its local surfaces.
// A recording still running at shutdown is stopped and uploaded before Run returns.
func (s *RemoteCaptureService) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.loop.Run(gctx)
	})

	g.Go(func() error {
		if err := s.channel.Connect(gctx); err != nil {
			slog.Warn("Running without command channel", "url", s.cfg.Channel.URL)
			return nil
		}
		select {
		case <-gctx.Done():
			s.channel.Close()
		case <-s.channel.Done():
			slog.Warn("Command channel closed, not reconnecting", "url", s.cfg.Channel.URL)
		}
		return nil
	})

	if s.opts.Console {
		console := ui.NewConsole(s.opts.In, s.opts.Out, s.loop, s.controller, s.channel)
		g.Go(func() error {
			return console.Run(gctx)
		})
	}

	if s.cfg.Panel.Enabled {
		panel := server.New(s.cfg.Panel.Port, s.loop, s.controller, s.channel)
		g.Go(func() error {
			return panel.Start(gctx)
		})
	}

	err := g.Wait()

	// The loop has exited, so nothing else mutates the controller now.
	if s.controller.Snapshot().State == controller.StateRecording {
		slog.Info("Stopping recording before shutdown")
		s.controller.Stop()
	}

	slog.Debug("Waiting for in-flight uploads")
	s.uploader.Wait()

	if err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}
	return nil
}

// GetRecordingStatus returns the current recording snapshot
func (s *RemoteCaptureService) GetRecordingStatus() controller.Snapshot {
	return s.controller.Snapshot()
}

// GetConnectionState returns the command channel state
func (s *RemoteCaptureService) GetConnectionState() channel.State {
	return s.channel.State()
}

// GetConfig returns the current configuration
func (s *RemoteCaptureService) GetConfig() *config.Config {
	return s.cfg
}
