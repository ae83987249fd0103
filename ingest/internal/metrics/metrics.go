package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admission metrics
	AgentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_agent_events_received_total",
			Help: "Total events received from agents",
		},
		[]string{"agent"},
	)

	EventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_events_total",
			Help: "Total events received",
		},
	)

	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_ingest_rejected_total",
			Help: "Total requests rejected by the admission gate",
		},
		[]string{"reason"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"scope"},
	)

	// Queue metrics
	QueuePushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_queue_push_total",
			Help: "Messages handed to the durable queue, by outcome",
		},
		[]string{"result"},
	)

	QueueBufferLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsentry_queue_buffer_length",
			Help: "Messages waiting in the local buffer for the broker",
		},
	)

	QueueBufferDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_queue_buffer_dropped_total",
			Help: "Buffered messages dropped because the buffer was full",
		},
	)

	QueueFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_queue_flush_total",
			Help: "Buffer flush attempts, by outcome",
		},
		[]string{"result"},
	)

	// Detection metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_alerts_total",
			Help: "Alerts raised, by source",
		},
		[]string{"source"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netsentry_signature_scan_duration_seconds",
			Help:    "Duration of a signature pass over one event",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
	)

	ScanFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_signature_scan_failures_total",
			Help: "Signature passes aborted by a panic",
		},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_ingest_storage_errors_total",
			Help: "Total number of storage errors seen by the gate",
		},
		[]string{"op"},
	)

	// Broadcast metrics
	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsentry_hub_subscribers",
			Help: "Open live channel subscribers",
		},
	)

	HubBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_hub_broadcast_total",
			Help: "Frames broadcast to subscribers, by frame type",
		},
		[]string{"type"},
	)

	HubWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_hub_write_errors_total",
			Help: "Subscriber writes that failed and removed the subscriber",
		},
	)
)
