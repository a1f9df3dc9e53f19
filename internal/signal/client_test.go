package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"meshchat/native/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu           sync.Mutex
	connected    int
	errs         []error
	envelopes    []domain.Envelope
	disconnected chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{disconnected: make(chan error, 1)}
}

func (h *recordingHandler) OnConnected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected++
}

func (h *recordingHandler) OnDisconnected(err error) { h.disconnected <- err }

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *recordingHandler) OnEnvelope(env domain.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envelopes = append(h.envelopes, env)
}

func (h *recordingHandler) received() []domain.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Envelope(nil), h.envelopes...)
}

func (h *recordingHandler) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *recordingHandler) waitDisconnected(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.disconnected:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect reported")
		return nil
	}
}

// relay starts a test server that runs serve for every WebSocket connection.
func relay(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echo(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func TestClient_FlushesQueuedEnvelopesOnConnect(t *testing.T) {
	url := relay(t, echo)
	h := newRecordingHandler()
	c := NewClient(url, h, time.Minute, zerolog.Nop())

	require.NoError(t, c.Send(domain.ChatMessage{Username: "alice", Message: "queued"}))
	assert.False(t, c.Connected())

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())
	require.NoError(t, c.Send(domain.ChatMessage{Username: "alice", Message: "live"}))

	require.Eventually(t, func() bool { return len(h.received()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.Envelope{
		domain.ChatMessage{Username: "alice", Message: "queued"},
		domain.ChatMessage{Username: "alice", Message: "live"},
	}, h.received())

	c.Close()
	assert.NoError(t, h.waitDisconnected(t))
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Send(domain.Leave{Username: "alice"}), domain.ErrChannelClosed)
	assert.Equal(t, 1, h.connected)
}

func TestClient_DropsMalformedFrames(t *testing.T) {
	url := relay(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"leave","username":"bob"}`))
		echo(conn)
	})
	h := newRecordingHandler()
	c := NewClient(url, h, time.Minute, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.Eventually(t, func() bool { return len(h.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.Leave{Username: "bob"}, h.received()[0])
}

func TestClient_RemoteClose(t *testing.T) {
	url := relay(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})
	h := newRecordingHandler()
	c := NewClient(url, h, time.Minute, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))

	assert.Error(t, h.waitDisconnected(t))
	assert.False(t, c.Connected())
	assert.Empty(t, h.errors(), "normal closure is not an error")
	assert.ErrorIs(t, c.Send(domain.Leave{Username: "alice"}), domain.ErrChannelClosed)
}

func TestClient_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	h := newRecordingHandler()
	c := NewClient(url, h, 0, zerolog.Nop())

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Error(t, h.waitDisconnected(t))
	assert.Len(t, h.errors(), 1)
	assert.ErrorIs(t, c.Connect(context.Background()), domain.ErrChannelClosed)
}

func TestClient_CloseBeforeConnect(t *testing.T) {
	h := newRecordingHandler()
	c := NewClient("ws://127.0.0.1:1/ws", h, time.Minute, zerolog.Nop())
	require.NoError(t, c.Send(domain.Join{Username: "alice"}))

	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Send(domain.Join{Username: "alice"}), domain.ErrChannelClosed)
	assert.ErrorIs(t, c.Connect(context.Background()), domain.ErrChannelClosed)
}
