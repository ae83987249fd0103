package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/netsentry/netsentry/common/logging"
)

// DefaultRelaySubject carries frames between gate replicas.
const DefaultRelaySubject = "netsentry.broadcast"

type relayEnvelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// NATSRelay shares broadcast frames between replicas over a NATS subject.
// Frames published by this replica are ignored on receipt so local
// subscribers see each frame once.
type NATSRelay struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	origin  string
	deliver func([]byte)
	logger  *slog.Logger
}

// NewNATSRelay connects to url and delivers frames from other replicas
// through deliver.
func NewNATSRelay(url, subject string, deliver func([]byte), logger *slog.Logger) (*NATSRelay, error) {
	if subject == "" {
		subject = DefaultRelaySubject
	}

	conn, err := nats.Connect(url,
		nats.Name("netsentry-ingest"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS relay disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS relay reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	r := &NATSRelay{
		conn:    conn,
		subject: subject,
		origin:  uuid.New().String(),
		deliver: deliver,
		logger:  logger,
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		r.handle(msg.Data)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	r.sub = sub

	return r, nil
}

func (r *NATSRelay) handle(data []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn("dropping malformed relay frame", logging.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.deliver(env.Frame)
}

func (r *NATSRelay) Publish(frame []byte) error {
	data, err := json.Marshal(relayEnvelope{Origin: r.origin, Frame: frame})
	if err != nil {
		return fmt.Errorf("encode relay frame: %w", err)
	}
	if err := r.conn.Publish(r.subject, data); err != nil {
		return fmt.Errorf("publish relay frame: %w", err)
	}
	return nil
}

func (r *NATSRelay) Close() error {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
