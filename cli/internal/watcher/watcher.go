// Package watcher subscribes to the gate's live channel and runs the
// signature rules over every packet frame on the client side.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/signatures"
)

// ErrRejected is returned when the gate closes the channel with a policy
// violation, which it does for bad tokens.
var ErrRejected = errors.New("live channel rejected the subscription")

// Frame is one message received on the live channel.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Time string          `json:"time,omitempty"`
}

// Handler receives decoded frames.
type Handler interface {
	// Packet is called for every packet frame with the local rule hits.
	Packet(e models.Event, hits []signatures.Hit)
	// Alert is called for alerts raised by the gate.
	Alert(a models.Alert)
	Heartbeat(at string)
}

type Watcher struct {
	url    string
	token  string
	rules  *signatures.Store
	dialer *websocket.Dialer
}

// New creates a watcher for the gate at gateURL (http, https, ws or wss).
func New(gateURL, token string, rules []models.Signature) (*Watcher, error) {
	wsURL, err := LiveURL(gateURL)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		url:    wsURL,
		token:  token,
		rules:  signatures.NewStore(rules),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// LiveURL turns a gate base URL into its /ws endpoint.
func LiveURL(gateURL string) (string, error) {
	u, err := url.Parse(gateURL)
	if err != nil {
		return "", fmt.Errorf("parse gate url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported gate url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// SetRules swaps the rule set used for subsequent packet frames.
func (w *Watcher) SetRules(rules []models.Signature) {
	w.rules.Replace(rules)
}

// Run reads frames until ctx is cancelled or the connection ends. A clean
// shutdown through ctx returns nil.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	header := http.Header{}
	if w.token != "" {
		header.Set("Sec-WebSocket-Protocol", w.token)
	}

	conn, _, err := w.dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				return ErrRejected
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read live channel: %w", err)
		}
		w.dispatch(data, h)
	}
}

// dispatch decodes one frame. Malformed frames are skipped.
func (w *Watcher) dispatch(data []byte, h Handler) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}
	switch f.Type {
	case "packet":
		var e models.Event
		if err := json.Unmarshal(f.Data, &e); err != nil {
			return
		}
		h.Packet(e, w.rules.Scan(&e))
	case "alert":
		var a models.Alert
		if err := json.Unmarshal(f.Data, &a); err != nil {
			return
		}
		h.Alert(a)
	case "heartbeat":
		h.Heartbeat(f.Time)
	}
}
