package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_worker_messages_total",
			Help: "Queue messages handled, by type and result",
		},
		[]string{"type", "result"},
	)

	HandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netsentry_worker_handle_duration_seconds",
			Help:    "Time spent persisting one queue message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	PopErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_worker_pop_errors_total",
			Help: "Failed pops from the broker",
		},
	)

	RetentionPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_worker_retention_purged_total",
			Help: "Alerts deleted by the retention loop",
		},
	)

	RetentionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_worker_retention_errors_total",
			Help: "Retention passes that failed",
		},
	)
)
