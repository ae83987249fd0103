// Package queue hands messages to the durable broker, buffering them locally
// while the broker is unreachable.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/queue"
	"github.com/netsentry/netsentry/ingest/internal/metrics"
)

// ErrBrokerUnavailable marks a failed push. It is logged and never returned
// from Enqueue.
var ErrBrokerUnavailable = errors.New("broker unavailable")

type Options struct {
	PushTimeout   time.Duration
	FlushInterval time.Duration
	BatchSize     int
	// BufferMax caps the local buffer; 0 means unbounded. When full the oldest
	// message is dropped.
	BufferMax int
}

func (o *Options) setDefaults() {
	if o.PushTimeout <= 0 {
		o.PushTimeout = 2 * time.Second
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
}

type Adapter struct {
	broker queue.Broker
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	buffer [][]byte
}

func NewAdapter(broker queue.Broker, opts Options, logger *slog.Logger) *Adapter {
	opts.setDefaults()
	return &Adapter{
		broker: broker,
		opts:   opts,
		logger: logger,
	}
}

// Enqueue pushes msg to the broker or, failing that, to the local buffer.
// It never fails and is not cancelled by ctx.
func (a *Adapter) Enqueue(ctx context.Context, msg models.QueueMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		a.logger.ErrorContext(ctx, "dropping unserializable queue message",
			logging.MessageType(msg.Type), logging.Error(err))
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.PushTimeout)
	defer cancel()

	if err := a.broker.Push(pushCtx, payload); err != nil {
		a.logger.WarnContext(ctx, "broker push failed, buffering message",
			logging.MessageType(msg.Type),
			logging.Error(fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)))
		a.append(payload)
		metrics.QueuePushTotal.WithLabelValues("buffered").Inc()
		return
	}
	metrics.QueuePushTotal.WithLabelValues("ok").Inc()
}

func (a *Adapter) append(payload []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = append(a.buffer, payload)
	a.trimLocked()
	metrics.QueueBufferLength.Set(float64(len(a.buffer)))
}

// trimLocked drops the oldest messages beyond BufferMax.
func (a *Adapter) trimLocked() {
	if a.opts.BufferMax <= 0 || len(a.buffer) <= a.opts.BufferMax {
		return
	}
	excess := len(a.buffer) - a.opts.BufferMax
	clear(a.buffer[:excess])
	a.buffer = a.buffer[excess:]
	metrics.QueueBufferDropped.Add(float64(excess))
	a.logger.Warn("local queue buffer full, dropped oldest messages", slog.Int("dropped", excess))
}

// BufferLen reports how many messages wait for the broker.
func (a *Adapter) BufferLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// Flush pushes up to BatchSize buffered messages in one command. On failure
// the batch goes back to the front of the buffer.
func (a *Adapter) Flush(ctx context.Context) (int, error) {
	a.mu.Lock()
	n := min(len(a.buffer), a.opts.BatchSize)
	if n == 0 {
		a.mu.Unlock()
		return 0, nil
	}
	batch := make([][]byte, n)
	copy(batch, a.buffer[:n])
	a.buffer = a.buffer[n:]
	metrics.QueueBufferLength.Set(float64(len(a.buffer)))
	a.mu.Unlock()

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.PushTimeout)
	defer cancel()

	if err := a.broker.Push(pushCtx, batch...); err != nil {
		a.mu.Lock()
		a.buffer = append(batch, a.buffer...)
		a.trimLocked()
		metrics.QueueBufferLength.Set(float64(len(a.buffer)))
		a.mu.Unlock()
		metrics.QueueFlushTotal.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}

	metrics.QueueFlushTotal.WithLabelValues("ok").Inc()
	return n, nil
}

// Drain flushes batch after batch until the buffer is empty or a push fails.
func (a *Adapter) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := a.Flush(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
}

// Run flushes the buffer every FlushInterval until ctx is done, then drains
// what is left.
func (a *Adapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if n, err := a.Drain(context.Background()); err != nil {
				a.logger.Warn("final buffer flush failed",
					slog.Int("flushed", n), slog.Int("remaining", a.BufferLen()), logging.Error(err))
			} else if n > 0 {
				a.logger.Info("final buffer flush", slog.Int("flushed", n))
			}
			return
		case <-ticker.C:
			n, err := a.Flush(ctx)
			if err != nil {
				a.logger.Warn("broker still unavailable, re-buffered batch",
					slog.Int("buffered", a.BufferLen()), logging.Error(err))
				continue
			}
			if n > 0 {
				a.logger.Info("flushed buffered messages",
					slog.Int("flushed", n), slog.Int("remaining", a.BufferLen()))
			}
		}
	}
}
