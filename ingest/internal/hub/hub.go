// Package hub fans packets, alerts and heartbeats out to live channel
// subscribers.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/ingest/internal/metrics"
)

// Frame types.
const (
	FramePacket    = "packet"
	FrameAlert     = "alert"
	FrameHeartbeat = "heartbeat"
)

const writeTimeout = 5 * time.Second

// Frame is one message on the live channel.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	Time string `json:"time,omitempty"`
}

// Authenticator resolves a subscriber identity from the upgrade request.
type Authenticator interface {
	AuthenticateSubscriber(r *http.Request) (string, error)
}

// Relay forwards frames to other gate replicas.
type Relay interface {
	Publish(frame []byte) error
	Close() error
}

type subscriber struct {
	conn      *websocket.Conn
	identity  string
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func (s *subscriber) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

type Hub struct {
	auth      Authenticator
	heartbeat time.Duration
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	relay       Relay
	wg          sync.WaitGroup
}

func New(auth Authenticator, heartbeat time.Duration, logger *slog.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}
	return &Hub{
		auth:        auth,
		heartbeat:   heartbeat,
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetRelay makes Broadcast also publish frames to other replicas.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = r
}

// Count returns the number of open subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast serializes f once and writes it to every local subscriber, then
// hands it to the relay if one is set.
func (h *Hub) Broadcast(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("failed to encode frame", slog.String("type", f.Type), logging.Error(err))
		return
	}
	metrics.HubBroadcastTotal.WithLabelValues(f.Type).Inc()
	h.Deliver(data)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		if err := relay.Publish(data); err != nil {
			h.logger.Warn("relay publish failed", logging.Error(err))
		}
	}
}

// Deliver writes an encoded frame to every local subscriber. A subscriber
// whose write fails is removed; the others are unaffected.
func (h *Hub) Deliver(data []byte) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s *subscriber) {
			defer wg.Done()
			if s.closed.Load() {
				return
			}
			if err := s.write(data); err != nil {
				metrics.HubWriteErrors.Inc()
				h.logger.Debug("subscriber write failed", slog.String("subscriber", s.identity), logging.Error(err))
				h.remove(s)
			}
		}(s)
	}
	wg.Wait()
}

// ServeHTTP upgrades an authenticated request into a subscriber. Rejected
// requests are upgraded and closed with a policy violation.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var header http.Header
	if protos := websocket.Subprotocols(r); len(protos) > 0 {
		header = http.Header{}
		header.Set("Sec-WebSocket-Protocol", protos[0])
	}

	identity, authErr := h.auth.AuthenticateSubscriber(r)

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}

	if authErr != nil {
		h.logger.Info("rejecting live channel subscriber", logging.IP(r.RemoteAddr), logging.Error(authErr))
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s := &subscriber{conn: conn, identity: identity, done: make(chan struct{})}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()
	metrics.HubSubscribers.Set(float64(count))
	h.logger.Info("live channel subscriber connected", slog.String("subscriber", identity), slog.Int("subscribers", count))

	h.wg.Add(2)
	go h.readLoop(s)
	go h.heartbeatLoop(s)
}

func (h *Hub) readLoop(s *subscriber) {
	defer h.wg.Done()
	defer h.remove(s)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		h.logger.Debug("live channel client message", slog.String("subscriber", s.identity), slog.Int("bytes", len(data)))
	}
}

func (h *Hub) heartbeatLoop(s *subscriber) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			if s.closed.Load() {
				return
			}
			data, _ := json.Marshal(Frame{Type: FrameHeartbeat, Time: now.UTC().Format(time.RFC3339)})
			if err := s.write(data); err != nil {
				h.remove(s)
				return
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)

		h.mu.Lock()
		delete(h.subscribers, s)
		count := len(h.subscribers)
		h.mu.Unlock()
		metrics.HubSubscribers.Set(float64(count))

		_ = s.conn.Close()
		h.logger.Info("live channel subscriber disconnected", slog.String("subscriber", s.identity), slog.Int("subscribers", count))
	})
}

// Close disconnects every subscriber, stops the relay and waits for the
// per-subscriber goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	relay := h.relay
	h.relay = nil
	h.mu.Unlock()

	if relay != nil {
		if err := relay.Close(); err != nil {
			h.logger.Warn("relay close failed", logging.Error(err))
		}
	}
	for _, s := range subs {
		s.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		h.remove(s)
	}
	h.wg.Wait()
}
