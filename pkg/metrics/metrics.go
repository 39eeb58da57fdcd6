// Package metrics defines the Prometheus instrumentation for the
// booking subsystem. Counters are registered via promauto and exposed
// on /metrics by the API server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP surface
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentorbook_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Checkout / booking flow
	CheckoutSessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorbook_checkout_sessions_started_total",
			Help: "Checkout sessions created with the payment provider",
		},
	)

	BookingsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorbook_bookings_confirmed_total",
			Help: "Bookings committed after payment verification",
		},
	)

	SlotConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorbook_slot_conflicts_total",
			Help: "Reservation attempts that lost the race for a slot",
		},
	)

	PaymentsLostSlot = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorbook_payments_lost_slot_total",
			Help: "Paid checkouts whose slot was taken before commit (refund path)",
		},
	)

	// Payout workflow
	PayoutsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorbook_payouts_requested_total",
			Help: "Payout requests accepted (after balance check)",
		},
	)

	PayoutsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorbook_payouts_resolved_total",
			Help: "Payout requests resolved, by outcome",
		},
		[]string{"status"},
	)
)

// RecordHTTPRequest increments the request counter and observes the
// request latency for one served request.
func RecordHTTPRequest(method, path, status string, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
