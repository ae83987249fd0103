package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/netsentry/netsentry/common/models"
)

// DefaultMemoryEvents is how many raw events a MemoryStore keeps.
const DefaultMemoryEvents = 10000

// MemoryStore is an in-process Store for tests and single-node demos. Events
// are kept in a bounded LRU; everything else is unbounded.
type MemoryStore struct {
	mu         sync.RWMutex
	events     *lru.Cache[int64, models.Event]
	nextEvent  int64
	alerts     map[string]models.Alert
	audit      []models.AuditEntry
	signatures []models.Signature
	fail       error
}

// NewMemoryStore creates a store retaining up to maxEvents raw events.
func NewMemoryStore(maxEvents int) *MemoryStore {
	if maxEvents <= 0 {
		maxEvents = DefaultMemoryEvents
	}
	events, _ := lru.New[int64, models.Event](maxEvents)
	return &MemoryStore{
		events: events,
		alerts: make(map[string]models.Alert),
	}
}

// SetFailure makes every subsequent call fail with err wrapped in ErrStorage.
// A nil err restores normal operation.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *MemoryStore) failure(op string) error {
	if s.fail != nil {
		return wrap(op, s.fail)
	}
	return nil
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure("ping")
}

func (s *MemoryStore) InsertEvent(ctx context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("insert event"); err != nil {
		return err
	}
	s.nextEvent++
	s.events.Add(s.nextEvent, *e)
	return nil
}

// Events returns retained events, oldest first.
func (s *MemoryStore) Events() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events.Values()
}

func (s *MemoryStore) InsertAlert(ctx context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("insert alert"); err != nil {
		return err
	}
	s.alerts[a.ID] = *a
	return nil
}

func (s *MemoryStore) InsertAudit(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("insert audit"); err != nil {
		return err
	}
	s.audit = append(s.audit, models.AuditEntry{
		ID:      int64(len(s.audit) + 1),
		Time:    time.Now().UTC(),
		Message: message,
	})
	return nil
}

func (s *MemoryStore) ListSignatures(ctx context.Context) ([]models.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("list signatures"); err != nil {
		return nil, err
	}
	out := make([]models.Signature, len(s.signatures))
	for i, sig := range s.signatures {
		sig.Patterns = slices.Clone(sig.Patterns)
		out[i] = sig
	}
	return out, nil
}

func (s *MemoryStore) InsertSignature(ctx context.Context, sig *models.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("insert signature"); err != nil {
		return err
	}
	for _, existing := range s.signatures {
		if strings.EqualFold(existing.Name, sig.Name) {
			return wrap("insert signature", errDuplicateName)
		}
	}
	if sig.Severity == "" {
		sig.Severity = models.DefaultAlertSeverity
	}
	sig.ID = int64(len(s.signatures) + 1)
	sig.Version = 1
	sig.CreatedAt = time.Now().UTC()

	stored := *sig
	stored.Patterns = slices.Clone(sig.Patterns)
	s.signatures = append(s.signatures, stored)
	return nil
}

func (s *MemoryStore) GetSignature(ctx context.Context, id int64) (*models.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("get signature"); err != nil {
		return nil, err
	}
	for _, sig := range s.signatures {
		if sig.ID == id {
			sig.Patterns = slices.Clone(sig.Patterns)
			return &sig, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SetSignatureActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("set signature active"); err != nil {
		return err
	}
	for i := range s.signatures {
		if s.signatures[i].ID == id {
			s.signatures[i].Active = active
			s.signatures[i].Version++
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("list alerts"); err != nil {
		return nil, err
	}
	alerts := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		alerts = append(alerts, a)
	}
	slices.SortFunc(alerts, func(a, b models.Alert) int {
		return b.Time.Compare(a.Time)
	})
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (s *MemoryStore) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("list audit"); err != nil {
		return nil, err
	}
	entries := slices.Clone(s.audit)
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStore) UpdateAlertTriage(ctx context.Context, id string, t models.AlertTriage) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("update alert triage"); err != nil {
		return nil, err
	}
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Acknowledged = t.Acknowledged
	a.Escalated = t.Escalated
	a.Notes = t.Notes
	s.alerts[id] = a
	return &a, nil
}

func (s *MemoryStore) PurgeAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("purge alerts"); err != nil {
		return 0, err
	}
	var n int64
	for id, a := range s.alerts {
		if a.Time.Before(cutoff) {
			delete(s.alerts, id)
			n++
		}
	}
	return n, nil
}
