// Package service coordinates the gate pipeline: queue adapter, signature
// scanner, broadcast hub and storage.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/storage"
	"github.com/netsentry/netsentry/ingest/internal/auth"
	"github.com/netsentry/netsentry/ingest/internal/hub"
	"github.com/netsentry/netsentry/ingest/internal/metrics"
	"github.com/netsentry/netsentry/ingest/internal/queue"
	"github.com/netsentry/netsentry/ingest/internal/scanner"
	"github.com/netsentry/netsentry/ingest/internal/validator"
)

// Errors surfaced at the gate boundary. Everything else is contained.
var (
	ErrUnauthenticated   = auth.ErrUnauthenticated
	ErrInvalidPayload    = validator.ErrInvalidPayload
	ErrRateLimited       = errors.New("rate limited")
	ErrBrokerUnavailable = queue.ErrBrokerUnavailable
	ErrMatchEngine       = scanner.ErrMatchEngine
	ErrNotFound          = storage.ErrNotFound
)

// ValidationError lists the fields of a rejected payload.
type ValidationError = validator.ValidationError

// DefaultSamplingIntervalMS is handed to agents pulling their config.
const DefaultSamplingIntervalMS = 500

// AuditLimit caps audit listings.
const AuditLimit = 200

// AlertLimit caps the rows considered for the latest-per-type view.
const AlertLimit = 500

// Enqueuer accepts messages for the durable queue without failing.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg models.QueueMessage)
	BufferLen() int
}

// Broadcaster fans frames out to live subscribers.
type Broadcaster interface {
	Broadcast(f hub.Frame)
	Count() int
}

// Stats summarizes gate activity since start.
type Stats struct {
	EventsAccepted int64     `json:"events_accepted"`
	AlertsRaised   int64     `json:"alerts_raised"`
	LastEvent      time.Time `json:"last_event,omitempty"`
}

type IngestService struct {
	queue   Enqueuer
	hub     Broadcaster
	scanner *scanner.Scanner
	store   storage.Store
	logger  *slog.Logger
	now     func() time.Time

	wg             sync.WaitGroup
	eventsAccepted atomic.Int64
	alertsRaised   atomic.Int64
	lastEvent      atomic.Int64
}

func NewIngestService(q Enqueuer, h Broadcaster, sc *scanner.Scanner, store storage.Store, logger *slog.Logger) *IngestService {
	return &IngestService{
		queue:   q,
		hub:     h,
		scanner: sc,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// AcceptEvent stamps e with the agent identity and server time, enqueues it,
// and starts the signature scan and the packet broadcast in the background.
// It returns once the event is enqueued or buffered.
func (s *IngestService) AcceptEvent(ctx context.Context, agentID string, e *models.Event) {
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	e.AgentID = agentID
	e.Time = now

	metrics.AgentEventsTotal.WithLabelValues(agentID).Inc()
	metrics.EventsTotal.Inc()
	s.eventsAccepted.Add(1)
	s.lastEvent.Store(now.UnixNano())

	msg, err := models.NewQueueMessage(models.MessageEvent, e)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode event", logging.AgentID(agentID), logging.Error(err))
	} else {
		s.queue.Enqueue(ctx, msg)
	}

	evt := *e
	s.background(ctx, "signature scan", func() { s.scanEvent(ctx, &evt) })
	s.background(ctx, "packet broadcast", func() {
		s.hub.Broadcast(hub.Frame{Type: hub.FramePacket, Data: &evt})
	})
}

// background runs fn in a goroutine, logging instead of crashing on panic.
func (s *IngestService) background(ctx context.Context, what string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorContext(ctx, what+" panicked", slog.Any("panic", r))
			}
		}()
		fn()
	}()
}

func (s *IngestService) scanEvent(ctx context.Context, e *models.Event) {
	alerts, err := s.scanner.Scan(e)
	if err != nil {
		s.logger.ErrorContext(ctx, "signature scan failed", logging.AgentID(e.AgentID), logging.Error(err))
		return
	}
	for i := range alerts {
		a := &alerts[i]
		s.persistAlert(ctx, a)
		s.queue.Enqueue(ctx, models.NewAuditMessage(fmt.Sprintf("Alert created: %s from %s", a.Type, a.Src)))
		s.hub.Broadcast(hub.Frame{Type: hub.FrameAlert, Data: a})
		s.alertsRaised.Add(1)
		metrics.AlertsTotal.WithLabelValues("signature").Inc()
		s.logger.InfoContext(ctx, "signature alert raised",
			logging.AlertID(a.ID), logging.Signature(a.Type), logging.AgentID(e.AgentID))
	}
}

// persistAlert stores a directly, falling back to an alert queue message for
// the worker when storage fails.
func (s *IngestService) persistAlert(ctx context.Context, a *models.Alert) {
	err := s.store.InsertAlert(ctx, a)
	if err == nil {
		return
	}
	metrics.StorageErrors.WithLabelValues("insert_alert").Inc()
	s.logger.WarnContext(ctx, "alert insert failed, handing to worker",
		logging.AlertID(a.ID), logging.Error(err))

	msg, encErr := models.NewQueueMessage(models.MessageAlert, a)
	if encErr != nil {
		s.logger.ErrorContext(ctx, "failed to encode alert", logging.AlertID(a.ID), logging.Error(encErr))
		return
	}
	s.queue.Enqueue(ctx, msg)
}

// SubmitAlert records an alert posted by an agent or script.
func (s *IngestService) SubmitAlert(ctx context.Context, a *models.Alert) {
	ctx = context.WithoutCancel(ctx)
	s.persistAlert(ctx, a)
	s.queue.Enqueue(ctx, models.NewAuditMessage(fmt.Sprintf("Alert received: %s %s -> %s", a.Type, a.Src, a.Dst)))
	s.hub.Broadcast(hub.Frame{Type: hub.FrameAlert, Data: a})
	s.alertsRaised.Add(1)
	metrics.AlertsTotal.WithLabelValues("submitted").Inc()
}

// LatestAlerts returns the most recent alert of each type.
func (s *IngestService) LatestAlerts(ctx context.Context) ([]models.Alert, error) {
	alerts, err := s.store.ListAlerts(ctx, AlertLimit)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("list_alerts").Inc()
		return nil, err
	}
	return storage.LatestPerType(alerts), nil
}

// TriageAlert updates the analyst fields of an alert and broadcasts it.
func (s *IngestService) TriageAlert(ctx context.Context, id string, t models.AlertTriage) (*models.Alert, error) {
	a, err := s.store.UpdateAlertTriage(ctx, id, t)
	if err != nil {
		return nil, err
	}
	s.queue.Enqueue(ctx, models.NewAuditMessage(fmt.Sprintf("Alert triaged: %s acknowledged=%t escalated=%t", id, t.Acknowledged, t.Escalated)))
	s.hub.Broadcast(hub.Frame{Type: hub.FrameAlert, Data: a})
	return a, nil
}

// Audit returns the latest audit entries.
func (s *IngestService) Audit(ctx context.Context) ([]models.AuditEntry, error) {
	return s.store.ListAudit(ctx, AuditLimit)
}

// Signatures lists stored signatures, or the file rules when storage fails.
func (s *IngestService) Signatures(ctx context.Context) []models.Signature {
	sigs, err := s.store.ListSignatures(ctx)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("list_signatures").Inc()
		s.logger.WarnContext(ctx, "listing stored signatures failed, serving file rules", logging.Error(err))
		return s.scanner.Fallback()
	}
	return sigs
}

// SetSignatureActive toggles a signature and republishes the scan snapshot.
func (s *IngestService) SetSignatureActive(ctx context.Context, id int64, active bool) (*models.Signature, error) {
	if err := s.store.SetSignatureActive(ctx, id, active); err != nil {
		return nil, err
	}
	sig, err := s.store.GetSignature(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.scanner.Reload(ctx); err != nil {
		s.logger.WarnContext(ctx, "signature reload failed", logging.Error(err))
	}

	verb := "deactivated"
	if active {
		verb = "activated"
	}
	s.queue.Enqueue(ctx, models.NewAuditMessage(fmt.Sprintf("Signature %s: %s", verb, sig.Name)))
	return sig, nil
}

// AgentConfig is pulled by agents to learn their sampling settings.
type AgentConfig struct {
	Agent              string   `json:"agent"`
	SamplingIntervalMS int      `json:"sampling_interval_ms"`
	ActiveSignatures   []string `json:"active_signatures"`
}

func (s *IngestService) AgentConfig(agentID string) AgentConfig {
	return AgentConfig{
		Agent:              agentID,
		SamplingIntervalMS: DefaultSamplingIntervalMS,
		ActiveSignatures:   s.scanner.Snapshot().Names(),
	}
}

// Readiness describes what /readyz reports.
type Readiness struct {
	Ready          bool   `json:"ready"`
	Storage        string `json:"storage"`
	BufferedEvents int    `json:"buffered_events"`
	Subscribers    int    `json:"subscribers"`
}

func (s *IngestService) Readiness(ctx context.Context) Readiness {
	r := Readiness{
		Ready:          true,
		Storage:        "ok",
		BufferedEvents: s.queue.BufferLen(),
		Subscribers:    s.hub.Count(),
	}
	if err := s.store.Ping(ctx); err != nil {
		r.Ready = false
		r.Storage = err.Error()
	}
	return r
}

func (s *IngestService) GetStats() Stats {
	st := Stats{
		EventsAccepted: s.eventsAccepted.Load(),
		AlertsRaised:   s.alertsRaised.Load(),
	}
	if ns := s.lastEvent.Load(); ns > 0 {
		st.LastEvent = time.Unix(0, ns).UTC()
	}
	return st
}

// Wait blocks until background scans and broadcasts have finished.
func (s *IngestService) Wait() {
	s.wg.Wait()
}
