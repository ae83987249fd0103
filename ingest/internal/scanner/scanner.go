// Package scanner runs the server-side signature pass over accepted events.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/signatures"
	"github.com/netsentry/netsentry/ingest/internal/metrics"
)

// ErrMatchEngine reports a scan aborted by a panic.
var ErrMatchEngine = errors.New("match engine failure")

// SignatureSource lists the stored rule set.
type SignatureSource interface {
	ListSignatures(ctx context.Context) ([]models.Signature, error)
}

type Scanner struct {
	rules    *signatures.Store
	source   SignatureSource
	fallback []models.Signature
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a scanner serving fallback until the first Reload succeeds.
func New(source SignatureSource, fallback []models.Signature, logger *slog.Logger) *Scanner {
	return &Scanner{
		rules:    signatures.NewStore(fallback),
		source:   source,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Reload publishes a fresh snapshot of the stored rules. When storage cannot
// be read the file rules are published instead and the error is returned.
func (s *Scanner) Reload(ctx context.Context) (*signatures.Snapshot, error) {
	if s.source == nil {
		return s.rules.Replace(s.fallback), nil
	}
	rules, err := s.source.ListSignatures(ctx)
	if err != nil {
		snap := s.rules.Replace(s.fallback)
		return snap, fmt.Errorf("load stored signatures: %w", err)
	}
	snap := s.rules.Replace(rules)
	s.logger.Info("signature snapshot loaded",
		slog.Int("rules", len(snap.Rules)), slog.Int("active", len(snap.Active())))
	return snap, nil
}

// Snapshot returns the rule set scans currently use.
func (s *Scanner) Snapshot() *signatures.Snapshot {
	return s.rules.Load()
}

// Fallback returns the rules loaded from the rule file.
func (s *Scanner) Fallback() []models.Signature {
	return s.fallback
}

// Scan matches e against one snapshot and returns the alerts it raises.
func (s *Scanner) Scan(e *models.Event) (alerts []models.Alert, err error) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			metrics.ScanFailures.Inc()
			alerts = nil
			err = fmt.Errorf("%w: %v", ErrMatchEngine, r)
		}
	}()

	now := s.now()
	for _, hit := range s.rules.Scan(e) {
		alert := signatures.NewAlert(hit, e, now)
		s.logger.Debug("signature matched",
			logging.Signature(hit.Signature.Name),
			slog.String("kind", hit.Kind.String()),
			slog.String("pattern", hit.Pattern),
			logging.AgentID(e.AgentID))
		alerts = append(alerts, alert)
	}
	return alerts, nil
}
