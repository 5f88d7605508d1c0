package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Jobs handed to a handler, by queue and outcome (ok|error)
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Total number of jobs dispatched to handlers",
		},
		[]string{"queue", "outcome"},
	)

	// Jobs currently inside a handler
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_jobs_in_flight",
			Help: "Number of jobs currently being processed",
		},
	)

	// Store call failures, by queue and operation (fetch|archive|delete)
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_store_errors_total",
			Help: "Total number of failed queue store calls",
		},
		[]string{"queue", "op"},
	)

	// Wake signals observed by sleeping threads
	WakeSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_wake_signals_total",
			Help: "Total number of wake signals that interrupted an idle sleep",
		},
	)

	// Notifications dropped because the queue is not monitored here
	WakeupsIgnored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_wakeups_ignored_total",
			Help: "Total number of job-enqueued notifications for unmonitored queues",
		},
	)

	// Wake-up channel reconnect attempts
	WakeupReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_wakeup_reconnects_total",
			Help: "Total number of wake-up channel reconnect attempts",
		},
	)

	// Presence records published
	PresencePublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_presence_published_total",
			Help: "Total number of presence records published",
		},
	)
)
