package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ApplicationsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rental_applications_submitted_total",
			Help: "Total number of applications accepted for processing",
		},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_status_transitions_total",
			Help: "Total number of status transitions by target status",
		},
		[]string{"status"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_notifications_total",
			Help: "Total number of notification attempts by outcome",
		},
		[]string{"outcome"},
	)

	NotificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rental_notification_send_duration_seconds",
			Help:    "Duration of a single notification delivery attempt",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rental_notification_queue_depth",
			Help: "Number of notifications waiting for a worker",
		},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_admin_login_attempts_total",
			Help: "Total number of admin login attempts by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_http_requests_total",
			Help: "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "code"},
	)
)

// Outcome labels a success flag.
func Outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
