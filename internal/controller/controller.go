package controller

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/remotecapture/internal/audio"
	"github.com/audiolibrelab/remotecapture/internal/upload"
)

// Command strings understood on the command channel
const (
	CommandStart = "startRecording"
	CommandStop  = "stopRecording"
)

// State represents the recording lifecycle
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is a read-only copy of the controller state
type Snapshot struct {
	State          State     `json:"-"`
	StateName      string    `json:"state"`
	ArtifactExists bool      `json:"artifact_exists"`
	ArtifactPath   string    `json:"artifact_path"`
	SessionID      string    `json:"session_id,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
}

// Submitter hands a finished artifact off for upload without waiting
type Submitter interface {
	Submit(artifact upload.Artifact)
}

// Controller owns the recording state and the artifact reference.
// Mutating methods are meant to be called from a single UI loop;
// Snapshot and Subscribe are safe from any goroutine.
type Controller struct {
	artifactPath string
	recorder     audio.Recorder
	player       audio.Player
	uploader     Submitter

	mutex          sync.RWMutex
	state          State
	artifactExists bool
	sessionID      string
	startedAt      time.Time
	transitioning  bool

	subMutex    sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// New creates a controller; whether a previous artifact exists is read from disk
func New(artifactPath string, recorder audio.Recorder, player audio.Player, uploader Submitter) *Controller {
	_, err := os.Stat(artifactPath)
	exists := err == nil

	slog.Debug("Recording controller initialized", "artifact", artifactPath, "artifact_exists", exists)

	return &Controller{
		artifactPath:   artifactPath,
		recorder:       recorder,
		player:         player,
		uploader:       uploader,
		state:          StateIdle,
		artifactExists: exists,
		subscribers:    make(map[int]func(Snapshot)),
	}
}

// HandleCommand dispatches one command-channel message
func (c *Controller) HandleCommand(text string) {
	switch text {
	case CommandStart:
		slog.Info("Received startRecording command")
		c.Start()
	case CommandStop:
		slog.Info("Received stopRecording command")
		c.Stop()
	default:
		slog.Warn("Unknown command received", "text", text)
	}
}

// Start begins capture to the artifact path. A second start while recording is ignored.
func (c *Controller) Start() {
	c.mutex.Lock()
	if c.state == StateRecording || c.transitioning {
		session := c.sessionID
		c.mutex.Unlock()
		slog.Warn("Start ignored, already recording", "session", session)
		return
	}
	c.transitioning = true
	c.mutex.Unlock()

	// The recorder may block spawning ffmpeg; readers keep seeing the previous state.
	err := c.recorder.Start(c.artifactPath)

	c.mutex.Lock()
	c.transitioning = false
	if err != nil {
		c.mutex.Unlock()
		slog.Error("Failed to start recording", "error", err)
		return
	}
	c.state = StateRecording
	c.artifactExists = false
	c.sessionID = uuid.New().String()
	c.startedAt = time.Now()
	snapshot := c.snapshotLocked()
	c.mutex.Unlock()

	slog.Info("Recording started", "session", snapshot.SessionID, "artifact", c.artifactPath)
	c.notify(snapshot)
}

// Stop ends capture, marks the artifact present and submits it for upload
func (c *Controller) Stop() {
	c.mutex.Lock()
	if c.state != StateRecording || c.transitioning {
		current, busy := c.state, c.transitioning
		c.mutex.Unlock()
		slog.Warn("Stop ignored, not recording", "state", current, "transitioning", busy)
		return
	}
	c.transitioning = true
	c.mutex.Unlock()

	// Stopping can take up to the recorder's stop timeout.
	if err := c.recorder.Stop(); err != nil {
		slog.Error("Failed to stop recording cleanly", "error", err)
	}

	c.mutex.Lock()
	c.transitioning = false
	c.state = StateStopped
	c.artifactExists = true
	snapshot := c.snapshotLocked()
	c.mutex.Unlock()

	slog.Info("Recording stopped", "session", snapshot.SessionID)
	c.notify(snapshot)

	c.uploader.Submit(upload.Artifact{Path: c.artifactPath, SessionID: snapshot.SessionID})
}

// Play plays the artifact if one exists
func (c *Controller) Play() {
	c.mutex.RLock()
	exists := c.artifactExists
	c.mutex.RUnlock()

	if !exists {
		slog.Info("No recording to play")
		return
	}

	if err := c.player.Play(c.artifactPath); err != nil {
		slog.Error("Playback failed", "error", err)
	}
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:          c.state,
		StateName:      c.state.String(),
		ArtifactExists: c.artifactExists,
		ArtifactPath:   c.artifactPath,
		SessionID:      c.sessionID,
		StartedAt:      c.startedAt,
	}
}

// Subscribe registers fn to be called after every state change.
// The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn

	return func() {
		c.subMutex.Lock()
		defer c.subMutex.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Controller) notify(snapshot Snapshot) {
	c.subMutex.Lock()
	subscribers := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	c.subMutex.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}
