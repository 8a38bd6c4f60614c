package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/audiolibrelab/remotecapture/internal/channel"
	"github.com/audiolibrelab/remotecapture/internal/controller"
	"github.com/audiolibrelab/remotecapture/internal/ui"
)

// Controls is what the panel needs from the recording controller
type Controls interface {
	Start()
	Stop()
	Play()
	Snapshot() controller.Snapshot
}

// ConnectionStater reports the command channel state
type ConnectionStater interface {
	State() channel.State
}

// Server is the local control panel for the recording client
type Server struct {
	port       string
	loop       *ui.Loop
	controls   Controls
	connection ConnectionStater

	httpServer *http.Server
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	Recording  controller.Snapshot `json:"recording"`
	Buttons    ui.Buttons          `json:"buttons"`
	Connection string              `json:"connection"`
}

// ActionResponse represents the JSON response for trigger endpoints
type ActionResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New creates a control panel server; connection may be nil
func New(port string, loop *ui.Loop, controls Controls, connection ConnectionStater) *Server {
	s := &Server{
		port:       port,
		loop:       loop,
		controls:   controls,
		connection: connection,
	}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the panel routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/start", s.trigger("start", s.controls.Start))
	mux.HandleFunc("/stop", s.trigger("stop", s.controls.Stop))
	mux.HandleFunc("/play", s.trigger("play", s.controls.Play))
	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.port, err)
	}

	slog.Info("Control panel listening", "url", fmt.Sprintf("http://localhost:%s/status", s.port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control panel failed: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snapshot := s.controls.Snapshot()
	connection := string(channel.StateDisconnected)
	if s.connection != nil {
		connection = string(s.connection.State())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Recording:  snapshot,
		Buttons:    ui.ButtonsFor(snapshot),
		Connection: connection,
	})
}

// trigger posts action onto the UI loop and acknowledges without waiting for it
func (s *Server) trigger(name string, action func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "action", name)
			return
		}

		if !s.loop.Post(action) {
			s.sendErrorResponse(w, http.StatusServiceUnavailable, "Shutting down", "action", name)
			return
		}

		slog.Info("Control panel action queued", "action", name, "remote", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(ActionResponse{Success: true, Action: name})
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ActionResponse{
		Success: false,
		Error:   errorMsg,
	})
}
