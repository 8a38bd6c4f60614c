package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandServer is a minimal command server: it pushes frames from outbound
// and records text frames it receives.
type commandServer struct {
	*httptest.Server
	outbound chan frame
	received chan string
}

type frame struct {
	messageType int
	payload     []byte
}

func newCommandServer(t *testing.T) *commandServer {
	t.Helper()
	cs := &commandServer{
		outbound: make(chan frame, 8),
		received: make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for {
				messageType, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if messageType == websocket.TextMessage {
					cs.received <- string(payload)
				}
			}
		}()

		for f := range cs.outbound {
			if f.messageType == websocket.CloseMessage {
				conn.WriteMessage(websocket.CloseMessage, f.payload)
				return
			}
			if err := conn.WriteMessage(f.messageType, f.payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		close(cs.outbound)
		cs.Close()
	})
	return cs
}

func (cs *commandServer) wsURL() string {
	return "ws" + strings.TrimPrefix(cs.URL, "http")
}

func (cs *commandServer) push(messageType int, payload string) {
	cs.outbound <- frame{messageType: messageType, payload: []byte(payload)}
}

type recorder struct {
	mu       sync.Mutex
	messages []string
	notify   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 16)}
}

func (r *recorder) handle(text string) {
	r.mu.Lock()
	r.messages = append(r.messages, text)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func TestConnectAndReceiveInOrder(t *testing.T) {
	server := newCommandServer(t)
	ch := New(server.wsURL())
	rec := newRecorder()
	ch.OnMessage(rec.handle)

	assert.Equal(t, StateDisconnected, ch.State())
	require.NoError(t, ch.Connect(context.Background()))
	assert.Equal(t, StateConnected, ch.State())

	server.push(websocket.TextMessage, "startRecording")
	server.push(websocket.TextMessage, "stopRecording")
	server.push(websocket.TextMessage, "pause")

	assert.Equal(t, []string{"startRecording", "stopRecording", "pause"}, rec.wait(t, 3))
	require.NoError(t, ch.Close())
}

func TestBinaryFramesAreIgnored(t *testing.T) {
	server := newCommandServer(t)
	ch := New(server.wsURL())
	rec := newRecorder()
	ch.OnMessage(rec.handle)
	require.NoError(t, ch.Connect(context.Background()))

	server.push(websocket.BinaryMessage, "\x00\x01")
	server.push(websocket.TextMessage, "startRecording")

	// Only the text frame reaches the handler and the loop keeps listening.
	assert.Equal(t, []string{"startRecording"}, rec.wait(t, 1))
	assert.Equal(t, StateConnected, ch.State())
	ch.Close()
}

func TestBinaryHandler(t *testing.T) {
	server := newCommandServer(t)
	ch := New(server.wsURL())
	got := make(chan []byte, 1)
	ch.OnBinary(func(b []byte) { got <- b })
	require.NoError(t, ch.Connect(context.Background()))

	server.push(websocket.BinaryMessage, "abc")

	select {
	case b := <-got:
		assert.Equal(t, []byte("abc"), b)
	case <-time.After(2 * time.Second):
		t.Fatal("binary handler not invoked")
	}
	ch.Close()
}

func TestSendDeliversTextFrame(t *testing.T) {
	server := newCommandServer(t)
	ch := New(server.wsURL())
	require.NoError(t, ch.Connect(context.Background()))

	ch.Send("recording:RECORDING")

	select {
	case text := <-server.received:
		assert.Equal(t, "recording:RECORDING", text)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the message")
	}
	ch.Close()
}

func TestSendBeforeConnectFails(t *testing.T) {
	ch := New("ws://127.0.0.1:1")

	err := ch.send("hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))

	// The public variant only logs.
	ch.Send("hello")
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestConnectFailureIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	ch := New("ws" + strings.TrimPrefix(server.URL, "http"))
	err := ch.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
	assert.Equal(t, StateClosed, ch.State())

	select {
	case <-ch.Done():
	default:
		t.Fatal("Done should be closed after a failed connect")
	}

	// No second attempt on the same channel.
	err = ch.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateClosed, ch.State())
}

func TestServerCloseEndsChannel(t *testing.T) {
	server := newCommandServer(t)
	ch := New(server.wsURL())
	require.NoError(t, ch.Connect(context.Background()))

	server.outbound <- frame{
		messageType: websocket.CloseMessage,
		payload:     websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
	}

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after server close frame")
	}
	assert.Equal(t, StateClosed, ch.State())
}

func TestCloseBeforeConnect(t *testing.T) {
	ch := New("ws://localhost:3002")
	require.NoError(t, ch.Close())
	assert.Equal(t, StateClosed, ch.State())
}

func TestHandshakeTimeoutOption(t *testing.T) {
	ch := New("ws://localhost:3002", WithHandshakeTimeout(3*time.Second))
	assert.Equal(t, 3*time.Second, ch.dialer.HandshakeTimeout)
}
