package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_booking_transitions_total",
			Help: "Booking status changes by resulting status",
		},
		[]string{"status"},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_payments_total",
			Help: "Payment status changes by resulting status",
		},
		[]string{"status"},
	)

	RefundedMinorUnitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_refunded_minor_units_total",
			Help: "Sum of refunded amounts in minor currency units",
		},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_webhook_events_total",
			Help: "Webhook deliveries by event type and outcome",
		},
		[]string{"type", "outcome"},
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_payouts_total",
			Help: "Payout status changes by resulting status",
		},
		[]string{"status"},
	)

	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_gateway_call_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBookingTransition(status string) {
	BookingTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordPayment(status string) {
	PaymentsTotal.WithLabelValues(status).Inc()
}

func RecordRefund(minorUnits int64) {
	RefundedMinorUnitsTotal.Add(float64(minorUnits))
}

func RecordWebhook(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordPayout(status string) {
	PayoutsTotal.WithLabelValues(status).Inc()
}

func RecordGatewayCall(operation string, err error, seconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	GatewayCallDuration.WithLabelValues(operation, outcome).Observe(seconds)
}
