// Package metrics exposes prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	PublishAttempts  *prometheus.CounterVec
	PublishSuccesses *prometheus.CounterVec
	PublishFailures  *prometheus.CounterVec
	CheckerTicks     prometheus.Counter
	Reschedules      prometheus.Counter
	QueueDepth       prometheus.Gauge
}

// New registers and returns the pipeline collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PublishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpipe_publish_attempts_total",
			Help: "Publish attempts handed to a provider, by platform.",
		}, []string{"platform"}),
		PublishSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpipe_publish_successes_total",
			Help: "Successful publishes, by platform.",
		}, []string{"platform"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpipe_publish_failures_total",
			Help: "Failed publish attempts, by platform.",
		}, []string{"platform"}),
		CheckerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postpipe_checker_ticks_total",
			Help: "Checker invocations, including disabled ticks.",
		}),
		Reschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postpipe_checker_reschedules_total",
			Help: "Successful checker reschedule requests.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "postpipe_queue_depth",
			Help: "Number of items currently queued, sampled per checker tick.",
		}),
	}

	reg.MustRegister(
		m.PublishAttempts,
		m.PublishSuccesses,
		m.PublishFailures,
		m.CheckerTicks,
		m.Reschedules,
		m.QueueDepth,
	)
	return m
}

// NewUnregistered returns collectors without registering them, for tests.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
