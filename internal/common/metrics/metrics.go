package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of notifications dispatched by channel and final status",
		},
		[]string{"channel", "status"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notification_dispatch_duration_seconds",
			Help: "End-to-end duration of a single notification dispatch",
		},
		[]string{"channel"},
	)

	EmailSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "email_send_duration_seconds",
			Help: "Wall-clock latency of SMTP delivery attempts",
		},
	)

	SweepClaimed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_claimed_notifications",
			Help:    "Number of pending notifications claimed per sweep tick",
			Buckets: prometheus.LinearBuckets(0, 10, 6),
		},
	)

	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_errors_total",
			Help: "Total number of sweep ticks that ended in error",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total number of events published to the message bus",
		},
		[]string{"routing_key"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_consumed_total",
			Help: "Total number of events consumed from the message bus",
		},
		[]string{"queue", "outcome"},
	)
)
