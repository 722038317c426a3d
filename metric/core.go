// Package metric provides Prometheus metrics registration and the core
// platform metrics shared by the dispatch components.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dispatch"

// Metrics contains the platform-level metrics shared across components.
// Domain components register their own metrics through the registry; these
// cover the concerns every deployment wants regardless of configuration.
type Metrics struct {
	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter

	// Connection pool metrics
	PoolConnections prometheus.Gauge
	PoolUtilization prometheus.Gauge
	PoolExhaustions prometheus.Counter

	// Resource tracker metrics
	TrackedResources prometheus.Gauge
	TrackedBytes     prometheus.Gauge

	// Notification metrics
	NotificationsQueued    prometheus.Counter
	NotificationsDelivered *prometheus.CounterVec
	NotificationsDropped   prometheus.Counter
	NotificationQueueDepth prometheus.Gauge
	UnreadNotifications    prometheus.Gauge

	// Work order metrics
	WorkOrderTransitions *prometheus.CounterVec
	DispatchQueueDepth   prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of non-expired realtime sessions",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total realtime sessions created",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "expired_total",
			Help:      "Total sessions purged after TTL expiry",
		}),
		PoolConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections",
			Help:      "Current number of pooled realtime connections",
		}),
		PoolUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "utilization",
			Help:      "Pool utilization ratio (connections / max size)",
		}),
		PoolExhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "exhaustions_total",
			Help:      "Total acquisitions rejected because the pool was full",
		}),
		TrackedResources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resources",
			Name:      "tracked",
			Help:      "Number of currently tracked resources",
		}),
		TrackedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resources",
			Name:      "tracked_bytes",
			Help:      "Sum of tracked resource sizes in bytes",
		}),
		NotificationsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queued_total",
			Help:      "Total notifications enqueued for delivery",
		}),
		NotificationsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivered_total",
			Help:      "Total notifications delivered, by channel",
		}, []string{"channel"}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "dropped_total",
			Help:      "Total notifications dropped after delivery failure",
		}),
		NotificationQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_depth",
			Help:      "Current depth of the notification delivery queue",
		}),
		UnreadNotifications: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "unread",
			Help:      "Current unread notification count",
		}),
		WorkOrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workorders",
			Name:      "transitions_total",
			Help:      "Total work order status transitions, by target status",
		}, []string{"status"}),
		DispatchQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workorders",
			Name:      "queue_depth",
			Help:      "Current dispatch queue depth",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "errors",
			Name:      "total",
			Help:      "Total errors by component and class",
		}, []string{"component", "class"}),
	}
}

// collectors returns every core metric for bulk registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SessionsActive, m.SessionsCreated, m.SessionsExpired,
		m.PoolConnections, m.PoolUtilization, m.PoolExhaustions,
		m.TrackedResources, m.TrackedBytes,
		m.NotificationsQueued, m.NotificationsDelivered, m.NotificationsDropped,
		m.NotificationQueueDepth, m.UnreadNotifications,
		m.WorkOrderTransitions, m.DispatchQueueDepth,
		m.ErrorsTotal,
	}
}
