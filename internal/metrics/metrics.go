package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	MessagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_messages_processed_total",
			Help: "Total number of queue messages processed successfully",
		},
	)

	MessagesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_messages_failed_total",
			Help: "Total number of queue messages that failed processing",
		},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtrack_parse_errors_total",
			Help: "Total number of envelope parse failures by kind",
		},
		[]string{"kind"},
	)

	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtrack_events_applied_total",
			Help: "Total number of delivery events applied by type",
		},
		[]string{"type"},
	)

	EventsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtrack_events_deduplicated_total",
			Help: "Total number of delivery events skipped as duplicates",
		},
		[]string{"type"},
	)

	UnknownEventTypes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_unknown_event_types_total",
			Help: "Total number of events dropped for an unknown type",
		},
	)

	PlaceholdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_placeholders_created_total",
			Help: "Total number of placeholder send records synthesized",
		},
	)

	PersistenceErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_persistence_errors_total",
			Help: "Total number of store failures during reconciliation",
		},
	)

	// Poller metrics
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_poll_cycles_total",
			Help: "Total number of completed polling cycles",
		},
	)

	PollReceiveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_poll_receive_errors_total",
			Help: "Total number of failed queue receive calls",
		},
	)

	DeleteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_delete_failures_total",
			Help: "Total number of failed queue message deletes",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailtrack_cycle_duration_seconds",
			Help:    "Duration of polling cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_tasks_abandoned_total",
			Help: "Total number of per-message tasks abandoned at the join deadline",
		},
	)

	// Dead-letter recovery metrics
	DLQDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_dlq_drained_total",
			Help: "Total number of dead-letter messages run through recovery",
		},
	)

	DLQDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrack_dlq_deleted_total",
			Help: "Total number of dead-letter messages deleted after recovery",
		},
	)
)
