package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/audiolibrelab/remotecapture/internal/config"
)

// ErrUpload marks file-read and network failures while uploading
var ErrUpload = errors.New("upload error")

// SessionHeader carries the recording session ID alongside the file
const SessionHeader = "X-Recording-Session"

// Artifact identifies the file to upload and the session that produced it
type Artifact struct {
	Path      string
	SessionID string
}

// Uploader posts recordings as a single-part multipart/form-data body
type Uploader struct {
	cfg    config.UploadConfig
	client *resty.Client

	inflight sync.WaitGroup
}

// New creates an uploader for cfg
func New(cfg config.UploadConfig) *Uploader {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Uploader{
		cfg:    cfg,
		client: client,
	}
}

// Upload reads the artifact and posts it, waiting for the response.
// The response body is ignored; only transport errors and error statuses fail.
func (u *Uploader) Upload(ctx context.Context, artifact Artifact) error {
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrUpload, artifact.Path, err)
	}
	return u.post(ctx, artifact.SessionID, data)
}

// Submit reads the artifact now and posts it in the background.
// The caller is never told the outcome; it is only logged.
func (u *Uploader) Submit(artifact Artifact) {
	slog.Info("Uploading audio file", "file", artifact.Path, "url", u.cfg.URL, "session", artifact.SessionID)

	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		slog.Error("Error reading audio file", "file", artifact.Path, "error", fmt.Errorf("%w: %w", ErrUpload, err))
		return
	}

	u.inflight.Add(1)
	go func() {
		defer u.inflight.Done()
		if err := u.post(context.Background(), artifact.SessionID, data); err != nil {
			slog.Error("Error uploading audio file", "session", artifact.SessionID, "error", err)
			return
		}
		slog.Info("Audio file uploaded successfully", "session", artifact.SessionID, "bytes", len(data))
	}()
}

// Wait blocks until every submitted upload has finished
func (u *Uploader) Wait() {
	u.inflight.Wait()
}

func (u *Uploader) post(ctx context.Context, sessionID string, data []byte) error {
	req := u.client.R().
		SetContext(ctx).
		SetMultipartField(u.cfg.Field, u.cfg.Filename, u.cfg.ContentType, bytes.NewReader(data))
	if sessionID != "" {
		req.SetHeader(SessionHeader, sessionID)
	}

	resp, err := req.Post(u.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %w", ErrUpload, u.cfg.URL, err)
	}

	slog.Debug("Upload response received", "status", resp.StatusCode(), "url", u.cfg.URL)
	if resp.IsError() {
		return fmt.Errorf("%w: POST %s: server returned %s", ErrUpload, u.cfg.URL, resp.Status())
	}
	return nil
}
