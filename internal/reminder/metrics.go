package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "reminder",
		Name:      "notifications_total",
		Help:      "Reminder items by outcome (sent, skipped, failed).",
	}, []string{"channel", "outcome"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "backoffice",
		Subsystem: "reminder",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of a full dispatch batch.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"channel"})

	runsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "reminder",
		Name:      "runs_dropped_total",
		Help:      "Scheduled runs dropped because a previous run was still active.",
	}, []string{"job"})
)
