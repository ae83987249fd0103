// Package storage is the durable record of events, alerts, audit entries and
// signatures.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/netsentry/netsentry/common/models"
)

var (
	// ErrStorage wraps every driver-level failure.
	ErrStorage = errors.New("storage failure")
	// ErrNotFound is returned when an addressed row does not exist.
	ErrNotFound = errors.New("not found")

	errDuplicateName = errors.New("duplicate signature name")
)

// Store is the storage contract consumed by the gate, the worker and the CLI.
type Store interface {
	InsertEvent(ctx context.Context, e *models.Event) error
	// InsertAlert stores a, replacing any alert with the same ID.
	InsertAlert(ctx context.Context, a *models.Alert) error
	InsertAudit(ctx context.Context, message string) error

	ListSignatures(ctx context.Context) ([]models.Signature, error)
	InsertSignature(ctx context.Context, sig *models.Signature) error
	GetSignature(ctx context.Context, id int64) (*models.Signature, error)
	SetSignatureActive(ctx context.Context, id int64, active bool) error

	// ListAlerts returns up to limit alerts, newest first.
	ListAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	// ListAudit returns up to limit audit entries, newest first.
	ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error)
	UpdateAlertTriage(ctx context.Context, id string, t models.AlertTriage) (*models.Alert, error)
	// PurgeAlertsBefore deletes alerts older than cutoff and reports how many.
	PurgeAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close()
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// LatestPerType keeps the first alert seen for each type. Given rows ordered
// newest first it yields the most recent alert of every type.
func LatestPerType(alerts []models.Alert) []models.Alert {
	seen := make(map[string]struct{}, len(alerts))
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		t := a.Type
		if t == "" {
			t = "unknown"
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, a)
	}
	return out
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
