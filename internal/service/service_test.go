package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/remotecapture/internal/audio"
	"github.com/audiolibrelab/remotecapture/internal/channel"
	"github.com/audiolibrelab/remotecapture/internal/config"
	"github.com/audiolibrelab/remotecapture/internal/controller"
	"github.com/audiolibrelab/remotecapture/internal/ui"
)

type stubRecorder struct {
	mu     sync.Mutex
	status audio.Status
	dest   string
	stops  int
}

func (r *stubRecorder) Start(dest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dest = dest
	r.status = audio.StatusRecording
	return os.WriteFile(dest, []byte("m4a-audio-bytes"), 0644)
}

func (r *stubRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.status = audio.StatusStandby
	return nil
}

func (r *stubRecorder) Status() audio.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

type stubPlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *stubPlayer) Play(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, path)
	return nil
}

// fakeCommandServer serves both the WebSocket command channel and the upload endpoint
type fakeCommandServer struct {
	*httptest.Server
	commands chan string
	statuses chan string

	mu      sync.Mutex
	uploads []receivedUpload
}

type receivedUpload struct {
	path        string
	contentType string
	body        []byte
}

func newFakeCommandServer(t *testing.T) *fakeCommandServer {
	t.Helper()
	fs := &fakeCommandServer{
		commands: make(chan string, 8),
		statuses: make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				fs.statuses <- string(payload)
			}
		}()
		for cmd := range fs.commands {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/audiodata", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		fs.uploads = append(fs.uploads, receivedUpload{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		})
		fs.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		close(fs.commands)
		fs.Close()
	})
	return fs
}

func (fs *fakeCommandServer) received() []receivedUpload {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]receivedUpload(nil), fs.uploads...)
}

func testConfig(t *testing.T, fs *fakeCommandServer) *config.Config {
	cfg := config.Default()
	cfg.Channel.URL = "ws" + strings.TrimPrefix(fs.URL, "http")
	cfg.Upload.URL = fs.URL + "/audiodata"
	cfg.Recording.Directory = t.TempDir()
	return cfg
}

func runService(t *testing.T, svc Service) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc.GetConnectionState() == channel.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	return func() {
		cancelCtx()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("service did not stop")
		}
	}
}

func TestCommandsDriveRecordingAndUpload(t *testing.T) {
	fs := newFakeCommandServer(t)
	cfg := testConfig(t, fs)
	svc := New(cfg, Options{Recorder: &stubRecorder{}, Player: &stubPlayer{}})
	stop := runService(t, svc)
	defer stop()

	fs.commands <- "startRecording"
	require.Eventually(t, func() bool {
		return svc.GetRecordingStatus().State == controller.StateRecording
	}, 2*time.Second, 10*time.Millisecond)

	buttons := ui.ButtonsFor(svc.GetRecordingStatus())
	assert.False(t, buttons.Start)
	assert.True(t, buttons.Stop)

	fs.commands <- "stopRecording"
	require.Eventually(t, func() bool {
		return svc.GetRecordingStatus().State == controller.StateStopped
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, svc.GetRecordingStatus().ArtifactExists)

	require.Eventually(t, func() bool {
		return len(fs.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	up := fs.received()[0]
	assert.Equal(t, "/audiodata", up.path)
	assert.True(t, strings.HasPrefix(up.contentType, "multipart/form-data; boundary="))
	assert.NotEmpty(t, up.body)
	assert.Contains(t, string(up.body), `name="audio"; filename="recording.m4a"`)
	assert.Contains(t, string(up.body), "Content-Type: audio/m4a")
	assert.Contains(t, string(up.body), "m4a-audio-bytes")
}

func TestUnknownCommandChangesNothing(t *testing.T) {
	fs := newFakeCommandServer(t)
	cfg := testConfig(t, fs)
	svc := New(cfg, Options{Recorder: &stubRecorder{}, Player: &stubPlayer{}})
	stop := runService(t, svc)
	defer stop()

	before := svc.GetRecordingStatus()
	fs.commands <- "pause"
	// A known command afterwards proves "pause" was processed first.
	fs.commands <- "startRecording"
	require.Eventually(t, func() bool {
		return svc.GetRecordingStatus().State == controller.StateRecording
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, controller.StateIdle, before.State)
	assert.Empty(t, fs.received())
}

func TestReportStatusEchoesStateChanges(t *testing.T) {
	fs := newFakeCommandServer(t)
	cfg := testConfig(t, fs)
	cfg.Channel.ReportStatus = true
	svc := New(cfg, Options{Recorder: &stubRecorder{}, Player: &stubPlayer{}})
	stop := runService(t, svc)
	defer stop()

	fs.commands <- "startRecording"
	select {
	case status := <-fs.statuses:
		assert.Equal(t, "recording:RECORDING", status)
	case <-time.After(2 * time.Second):
		t.Fatal("no status message received")
	}
}

func TestRunWithoutServerKeepsConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Channel.URL = "ws://127.0.0.1:1"
	cfg.Upload.URL = "http://127.0.0.1:1/audiodata"
	cfg.Recording.Directory = t.TempDir()

	player := &stubPlayer{}
	in, inWriter := io.Pipe()
	svc := New(cfg, Options{
		Console:  true,
		In:       in,
		Out:      io.Discard,
		Recorder: &stubRecorder{},
		Player:   player,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc.GetConnectionState() == channel.StateClosed
	}, 2*time.Second, 10*time.Millisecond)

	// The local surface still works without a command channel.
	_, err := io.WriteString(inWriter, "start\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return svc.GetRecordingStatus().State == controller.StateRecording
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	inWriter.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, filepath.Join(cfg.Recording.Directory, "recording.m4a"), svc.GetRecordingStatus().ArtifactPath)
}

func TestShutdownWhileRecordingStopsAndUploads(t *testing.T) {
	fs := newFakeCommandServer(t)
	cfg := testConfig(t, fs)
	recorder := &stubRecorder{}
	svc := New(cfg, Options{Recorder: recorder, Player: &stubPlayer{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc.GetConnectionState() == channel.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	fs.commands <- "startRecording"
	require.Eventually(t, func() bool {
		return svc.GetRecordingStatus().State == controller.StateRecording
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}

	// Run drains the upload before returning.
	assert.Equal(t, controller.StateStopped, svc.GetRecordingStatus().State)
	assert.Equal(t, audio.StatusStandby, recorder.Status())
	recorder.mu.Lock()
	assert.Equal(t, 1, recorder.stops)
	recorder.mu.Unlock()
	require.Len(t, fs.received(), 1)
	assert.Contains(t, string(fs.received()[0].body), "m4a-audio-bytes")
}
