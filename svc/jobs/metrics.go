package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the maintenance job collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	affected *prometheus.CounterVec
}

// NewMetrics creates job collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paykit",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Maintenance job runs by job and result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paykit",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Maintenance job duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		affected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paykit",
			Subsystem: "jobs",
			Name:      "subscriptions_affected_total",
			Help:      "Subscriptions changed by maintenance jobs.",
		}, []string{"job"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.affected)
	}
	return m
}

// Observe records a finished run. It matches queue.WithResultHook.
func (m *Metrics) Observe(name string, took time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name).Observe(took.Seconds())
}

func (m *Metrics) addAffected(name string, n int) {
	if n > 0 {
		m.affected.WithLabelValues(name).Add(float64(n))
	}
}
