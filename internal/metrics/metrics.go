// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendormatch",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vendormatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendormatch",
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries by outcome.",
	}, []string{"outcome"})

	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendormatch",
		Name:      "payment_transitions_total",
		Help:      "Applied payment status transitions by purpose and resulting status.",
	}, []string{"purpose", "status"})

	UnlockedOfferings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendormatch",
		Name:      "unlocked_offerings_total",
		Help:      "Offering snapshots appended to transactions.",
	}, []string{"purpose"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendormatch",
		Name:      "notifications_total",
		Help:      "Unlock notifications by result.",
	}, []string{"result"})

	BatchRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendormatch",
		Name:      "batch_rows_total",
		Help:      "Batch rows advanced by outcome.",
	}, []string{"outcome"})

	InferenceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendormatch",
		Name:      "inference_calls_total",
		Help:      "Inference calls by operation and result.",
	}, []string{"operation", "result"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vendormatch",
		Name:      "inference_call_duration_seconds",
		Help:      "Inference call latency by operation.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"operation"})

	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendormatch",
		Name:      "gateway_calls_total",
		Help:      "Payment gateway calls by method and result.",
	}, []string{"method", "result"})
)

// Result labels a call outcome for the *_calls_total counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
