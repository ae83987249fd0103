// Package consumer drains the durable queue into storage.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/queue"
	"github.com/netsentry/netsentry/common/storage"
	"github.com/netsentry/netsentry/worker/internal/metrics"
)

// ErrDecode marks a payload that is not a queue envelope.
var ErrDecode = errors.New("decode queue message")

type Options struct {
	// PopTimeout bounds each blocking pop; 0 waits until a message arrives.
	PopTimeout time.Duration
	// Backoff is slept after a broker error before popping again.
	Backoff time.Duration
}

type Consumer struct {
	broker queue.Broker
	store  storage.Store
	opts   Options
	logger *slog.Logger
}

func New(broker queue.Broker, store storage.Store, opts Options, logger *slog.Logger) *Consumer {
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	return &Consumer{broker: broker, store: store, opts: opts, logger: logger}
}

// Run pops and handles messages until ctx is cancelled. Handling errors are
// logged and never stop the loop.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("worker consuming queue", slog.Duration("pop_timeout", c.opts.PopTimeout))
	for {
		if ctx.Err() != nil {
			c.logger.Info("worker stopped")
			return
		}

		payload, err := c.broker.Pop(ctx, c.opts.PopTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			metrics.PopErrors.Inc()
			c.logger.Error("queue pop failed", logging.Error(err), slog.Duration("backoff", c.opts.Backoff))
			select {
			case <-ctx.Done():
			case <-time.After(c.opts.Backoff):
			}
			continue
		}

		if err := c.Handle(ctx, payload); err != nil {
			c.logger.Error("failed to handle queue message", logging.Error(err))
		}
	}
}

// Handle decodes one envelope and persists it by kind. Unknown kinds are
// kept as an audit entry carrying the raw envelope.
func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	var msg models.QueueMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		metrics.MessagesTotal.WithLabelValues("invalid", "error").Inc()
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	start := time.Now()
	kind := msg.Type
	err := c.dispatch(ctx, msg, payload)
	if !isKnown(kind) {
		kind = "unknown"
	}
	metrics.HandleDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.MessagesTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("handle %s message: %w", kind, err)
	}
	metrics.MessagesTotal.WithLabelValues(kind, "ok").Inc()
	c.logger.Debug("queue message persisted", logging.MessageType(kind))
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, msg models.QueueMessage, raw []byte) error {
	switch msg.Type {
	case models.MessageEvent:
		var e models.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return c.store.InsertEvent(ctx, &e)

	case models.MessageAlert:
		var a models.Alert
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return c.store.InsertAlert(ctx, &a)

	case models.MessageAudit:
		var p models.AuditPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return c.store.InsertAudit(ctx, p.Message)

	default:
		return c.store.InsertAudit(ctx, string(raw))
	}
}

func isKnown(kind string) bool {
	switch kind {
	case models.MessageEvent, models.MessageAlert, models.MessageAudit:
		return true
	}
	return false
}
