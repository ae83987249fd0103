package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/common/storage"
	"github.com/netsentry/netsentry/worker/internal/metrics"
)

// Retention periodically deletes alerts older than MaxAge.
type Retention struct {
	store    storage.Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewRetention(store storage.Store, interval, maxAge time.Duration, logger *slog.Logger) *Retention {
	return &Retention{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
	}
}

// Run purges once immediately and then every interval until ctx is done.
func (r *Retention) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("retention loop started",
		slog.Duration("interval", r.interval), slog.Duration("max_age", r.maxAge))
	r.Purge(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Purge(ctx)
		}
	}
}

// Purge deletes alerts older than the retention window and returns how many
// were removed.
func (r *Retention) Purge(ctx context.Context) int64 {
	cutoff := r.now().UTC().Add(-r.maxAge)
	n, err := r.store.PurgeAlertsBefore(ctx, cutoff)
	if err != nil {
		metrics.RetentionErrors.Inc()
		r.logger.Error("retention purge failed", logging.Error(err))
		return 0
	}
	metrics.RetentionPurged.Add(float64(n))
	if n > 0 {
		r.logger.Info("retention purged alerts", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	}
	return n
}
