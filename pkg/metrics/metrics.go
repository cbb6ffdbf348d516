// Package metrics holds the domain collectors exposed next to the gin metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wasender",
		Subsystem: "whatsapp",
		Name:      "sessions",
		Help:      "Tracked sessions by lifecycle state.",
	}, []string{"state"})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wasender",
		Subsystem: "whatsapp",
		Name:      "reconnects_total",
		Help:      "Reconnection attempts by outcome.",
	}, []string{"outcome"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wasender",
		Subsystem: "whatsapp",
		Name:      "messages_total",
		Help:      "Outbound messages by result.",
	}, []string{"result"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wasender",
		Subsystem: "sender",
		Name:      "active_workers",
		Help:      "Running bulk send workers.",
	})

	QueuedJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wasender",
		Subsystem: "sender",
		Name:      "queued_jobs",
		Help:      "Bulk send jobs waiting for tenant quota.",
	})

	AutoReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wasender",
		Subsystem: "autoreply",
		Name:      "replies_total",
		Help:      "Auto replies by result.",
	}, []string{"result"})
)
