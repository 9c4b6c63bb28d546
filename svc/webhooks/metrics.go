package webhooks

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded per delivery.
const (
	OutcomeProcessed       = "processed"
	OutcomeDuplicate       = "duplicate"
	OutcomeUnmatched       = "unmatched"
	OutcomeIgnored         = "ignored"
	OutcomeRejected        = "rejected"
	OutcomeInvalid         = "invalid"
	OutcomeUnknownProvider = "unknown_provider"
	OutcomeFailed          = "failed"
)

// Metrics holds the webhook collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates webhook collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paykit",
			Subsystem: "webhooks",
			Name:      "requests_total",
			Help:      "Webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paykit",
			Subsystem: "webhooks",
			Name:      "duration_seconds",
			Help:      "Webhook processing duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *Metrics) observe(provider, outcome string, seconds float64) {
	m.requests.WithLabelValues(provider, outcome).Inc()
	m.duration.WithLabelValues(provider).Observe(seconds)
}
