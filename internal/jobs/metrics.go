package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the queue instruments.
type Metrics struct {
	Submitted *prometheus.CounterVec
	Completed *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Retried   *prometheus.CounterVec
	Active    *prometheus.GaugeVec
	Duration  *prometheus.HistogramVec
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaflow",
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Jobs accepted per queue.",
		}, []string{"queue"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaflow",
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Jobs finished successfully per queue.",
		}, []string{"queue"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaflow",
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Jobs that exhausted their retries or failed permanently, per queue.",
		}, []string{"queue"}),
		Retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaflow",
			Subsystem: "jobs",
			Name:      "retried_total",
			Help:      "Jobs returned to pending, by queue and reason (backoff, manual, stalled).",
		}, []string{"queue", "reason"}),
		Active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mediaflow",
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Jobs executing in this process per queue.",
		}, []string{"queue"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediaflow",
			Subsystem: "jobs",
			Name:      "execution_seconds",
			Help:      "Handler execution time per queue and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 9),
		}, []string{"queue", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Completed, m.Failed, m.Retried, m.Active, m.Duration)
	}
	return m
}
