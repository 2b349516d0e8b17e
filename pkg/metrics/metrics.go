package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Scheduling
	BookingConflicts     prometheus.Counter
	AppointmentsByStatus *prometheus.CounterVec

	// RTC
	RTCConnections prometheus.Gauge
	RTCSignals     *prometheus.CounterVec
	RoomsExpired   prometheus.Counter

	// Notifications
	NotificationsSent *prometheus.CounterVec
	RemindersSent     *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics with the default registry.
func NewMetrics(namespace, subsystem string) *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewWithRegisterer registers on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OutboxEventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		BookingConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "booking_conflicts_total",
			Help:      "Bookings rejected because the slot was already taken",
		}),
		AppointmentsByStatus: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"status"}),

		RTCConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtc_connections",
			Help:      "Current number of signaling sockets on this instance",
		}),
		RTCSignals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtc_signals_total",
			Help:      "Signaling messages relayed by type",
		}, []string{"signal_type"}),
		RoomsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtc_rooms_expired_total",
			Help:      "Rooms moved to expired by the sweeper",
		}),

		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_sent_total",
			Help:      "Notification delivery attempts by channel and outcome",
		}, []string{"channel", "status"}),
		RemindersSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointment_reminders_total",
			Help:      "Appointment reminders dispatched by type and outcome",
		}, []string{"reminder_type", "status"}),
	}
}

// NewNoop returns metrics bound to a throwaway registry.
func NewNoop() *Metrics {
	return NewWithRegisterer(prometheus.NewRegistry(), "test", "")
}
