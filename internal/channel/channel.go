package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnection marks open, send and receive failures on the command channel.
var ErrConnection = errors.New("connection error")

// State represents the lifecycle of the command channel connection
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateClosed       State = "CLOSED"
)

// Handler receives the raw payload of each inbound text frame.
type Handler func(text string)

// Channel keeps one persistent WebSocket to the command server.
// There is no reconnect: once Closed, a new Channel is required.
type Channel struct {
	url    string
	dialer *websocket.Dialer

	mutex   sync.RWMutex
	state   State
	conn    *websocket.Conn
	handler Handler
	binary  func([]byte)

	writeMutex sync.Mutex
	done       chan struct{}
	closeOnce  sync.Once
}

type Option func(*Channel)

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.dialer.HandshakeTimeout = d
	}
}

// WithDialer replaces the default dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) {
		c.dialer = d
	}
}

// New creates a channel for url. Nothing is dialed until Connect.
func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		state: StateDisconnected,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnMessage registers the handler invoked once per inbound text message.
func (c *Channel) OnMessage(h Handler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handler = h
}

// OnBinary registers a handler for binary frames. Without one they are logged and dropped.
func (c *Channel) OnBinary(h func([]byte)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.binary = h
}

// Connect dials the endpoint and starts the receive loop.
// A failure leaves the channel Closed; the error is logged here and returned
// for the caller to log, never retried.
func (c *Channel) Connect(ctx context.Context) error {
	c.mutex.Lock()
	if c.state != StateDisconnected {
		current := c.state
		c.mutex.Unlock()
		return fmt.Errorf("%w: connect called in state %s", ErrConnection, current)
	}
	c.state = StateConnecting
	c.mutex.Unlock()

	slog.Info("Connecting to command channel", "url", c.url)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.markClosed()
		err = fmt.Errorf("%w: dial %s: %w", ErrConnection, c.url, err)
		slog.Error("Command channel connection failed", "url", c.url, "error", err)
		return err
	}

	conn.SetPongHandler(func(appData string) error {
		slog.Debug("Command channel pong received")
		return nil
	})

	c.mutex.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mutex.Unlock()

	slog.Info("Command channel connected", "url", c.url)

	c.ping()

	go c.receiveLoop(conn)

	return nil
}

// ping checks the connection once after the handshake; the outcome is only logged.
func (c *Channel) ping() {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	deadline := time.Now().Add(5 * time.Second)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		slog.Warn("Command channel ping failed", "error", err)
		return
	}
	slog.Debug("Command channel ping sent")
}

// receiveLoop re-arms after every message until a read fails.
func (c *Channel) receiveLoop(conn *websocket.Conn) {
	defer func() {
		c.markClosed()
		conn.Close()
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("Command channel closed by server")
			} else if c.State() == StateClosed {
				slog.Debug("Command channel receive loop ended after close")
			} else {
				slog.Error("Failed to receive message", "error", fmt.Errorf("%w: receive: %w", ErrConnection, err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			text := string(payload)
			slog.Debug("Received text message", "text", text)
			c.mutex.RLock()
			handler := c.handler
			c.mutex.RUnlock()
			if handler != nil {
				handler(text)
			} else {
				slog.Warn("No handler registered, dropping message", "text", text)
			}
		case websocket.BinaryMessage:
			c.mutex.RLock()
			binary := c.binary
			c.mutex.RUnlock()
			if binary != nil {
				binary(payload)
			} else {
				slog.Info("Received binary message, ignoring", "bytes", len(payload))
			}
		}
	}
}

// Send transmits one text frame. Errors are logged, not returned.
func (c *Channel) Send(text string) {
	if err := c.send(text); err != nil {
		slog.Error("WebSocket sending error", "error", err)
		return
	}
	slog.Debug("Message sent successfully", "text", text)
}

func (c *Channel) send(text string) error {
	c.mutex.RLock()
	conn, state := c.conn, c.state
	c.mutex.RUnlock()

	if conn == nil || state != StateConnected {
		return fmt.Errorf("%w: send in state %s", ErrConnection, state)
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: send: %w", ErrConnection, err)
	}
	return nil
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.state
}

// Done is closed once the channel reaches Closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close sends a normal closure frame and tears the connection down.
func (c *Channel) Close() error {
	c.mutex.RLock()
	conn, state := c.conn, c.state
	c.mutex.RUnlock()

	if conn == nil {
		c.markClosed()
		return nil
	}
	if state == StateConnected {
		c.writeMutex.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			slog.Debug("Failed to send close frame", "error", err)
		}
		c.writeMutex.Unlock()
	}

	c.markClosed()
	return conn.Close()
}

func (c *Channel) markClosed() {
	c.mutex.Lock()
	c.state = StateClosed
	c.mutex.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}
