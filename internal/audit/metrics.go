package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricEventsRecorded      = "audit_events_recorded_total"
	MetricChainVerifyFailures = "audit_chain_verify_failures_total"
	MetricAppendDuration      = "audit_append_duration_seconds"
)

// Metrics contains Prometheus metrics for the audit subsystem.
// All operations are thread-safe.
type Metrics struct {
	eventsRecorded      *prometheus.CounterVec
	chainVerifyFailures prometheus.Counter
	appendDuration      prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventsRecorded,
			Help: "Total number of audit events recorded, by type and outcome",
		}, []string{"type", "outcome"}),
		chainVerifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricChainVerifyFailures,
			Help: "Total number of audit chain verifications that detected tampering",
		}),
		appendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricAppendDuration,
			Help:    "Histogram of audit event append latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.eventsRecorded,
		m.chainVerifyFailures,
		m.appendDuration,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncEventsRecorded increments the recorded events counter for a type and
// outcome pair.
func (m *Metrics) IncEventsRecorded(eventType EventType, outcome Outcome) {
	m.eventsRecorded.WithLabelValues(string(eventType), string(outcome)).Inc()
}

// IncChainVerifyFailures increments the verification failure counter.
func (m *Metrics) IncChainVerifyFailures() {
	m.chainVerifyFailures.Inc()
}

// ObserveAppendDuration records an append latency sample.
func (m *Metrics) ObserveAppendDuration(seconds float64) {
	m.appendDuration.Observe(seconds)
}
