package hub

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
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

type tokenAuth struct{}

func (tokenAuth) AuthenticateSubscriber(r *http.Request) (string, error) {
	if tok := r.URL.Query().Get("token"); tok == "good" {
		return "dashboard", nil
	}
	if protos := websocket.Subprotocols(r); len(protos) > 0 && protos[0] == "good" {
		return "dashboard", nil
	}
	return "", errors.New("unauthenticated")
}

type captureRelay struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *captureRelay) Publish(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *captureRelay) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func newTestHub(t *testing.T, heartbeat time.Duration) (*Hub, string) {
	t.Helper()
	h := New(tokenAuth{}, heartbeat, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func waitForSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastToSubscribers(t *testing.T) {
	h, url := newTestHub(t, time.Hour)

	a := dial(t, url+"?token=good")
	b := dial(t, url+"?token=good")
	waitForSubscribers(t, h, 2)

	h.Broadcast(Frame{Type: FramePacket, Data: map[string]string{"src": "10.0.0.1"}})

	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		assert.Equal(t, FramePacket, f.Type)
		assert.Equal(t, map[string]interface{}{"src": "10.0.0.1"}, f.Data)
	}
}

func TestHub_SubprotocolToken(t *testing.T) {
	h, url := newTestHub(t, time.Hour)

	dialer := websocket.Dialer{Subprotocols: []string{"good"}}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "good", resp.Header.Get("Sec-WebSocket-Protocol"))
	waitForSubscribers(t, h, 1)
}

func TestHub_RejectsWithPolicyViolation(t *testing.T) {
	h, url := newTestHub(t, time.Hour)

	conn := dial(t, url+"?token=bad")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, 0, h.Count())
}

func TestHub_Heartbeat(t *testing.T) {
	h, url := newTestHub(t, 20*time.Millisecond)
	conn := dial(t, url+"?token=good")
	waitForSubscribers(t, h, 1)

	f := readFrame(t, conn)
	assert.Equal(t, FrameHeartbeat, f.Type)
	_, err := time.Parse(time.RFC3339, f.Time)
	assert.NoError(t, err)
}

func TestHub_ClosedSubscriberRemovedOthersUnaffected(t *testing.T) {
	h, url := newTestHub(t, time.Hour)

	gone := dial(t, url+"?token=good")
	stay := dial(t, url+"?token=good")
	waitForSubscribers(t, h, 2)

	require.NoError(t, gone.Close())
	waitForSubscribers(t, h, 1)

	h.Broadcast(Frame{Type: FrameAlert, Data: map[string]string{"id": "a1"}})
	f := readFrame(t, stay)
	assert.Equal(t, FrameAlert, f.Type)
}

func TestHub_ClientMessagesIgnored(t *testing.T) {
	h, url := newTestHub(t, time.Hour)
	conn := dial(t, url+"?token=good")
	waitForSubscribers(t, h, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":"server"}`)))
	h.Broadcast(Frame{Type: FramePacket})
	assert.Equal(t, FramePacket, readFrame(t, conn).Type)
	assert.Equal(t, 1, h.Count())
}

func TestHub_RelayPublish(t *testing.T) {
	h, url := newTestHub(t, time.Hour)
	relay := &captureRelay{}
	h.SetRelay(relay)

	conn := dial(t, url+"?token=good")
	waitForSubscribers(t, h, 1)

	h.Broadcast(Frame{Type: FrameAlert})
	assert.Equal(t, FrameAlert, readFrame(t, conn).Type)

	relay.mu.Lock()
	require.Len(t, relay.frames, 1)
	assert.JSONEq(t, `{"type":"alert"}`, string(relay.frames[0]))
	relay.mu.Unlock()

	// Frames from other replicas arrive through Deliver.
	h.Deliver([]byte(`{"type":"packet"}`))
	assert.Equal(t, FramePacket, readFrame(t, conn).Type)

	h.Close()
	assert.True(t, relay.closed)
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	h, url := newTestHub(t, time.Hour)
	conn := dial(t, url+"?token=good")
	waitForSubscribers(t, h, 1)

	h.Close()
	assert.Equal(t, 0, h.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}
