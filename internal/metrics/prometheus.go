package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports activation metrics to a Prometheus registry.
type PrometheusRecorder struct {
	activations     *prometheus.CounterVec
	duration        prometheus.Histogram
	conflicts       prometheus.Counter
	lockUnavailable prometheus.Counter
	auditPublished  *prometheus.CounterVec
	auditProcessed  *prometheus.CounterVec
	auditDepth      prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	p := &PrometheusRecorder{
		activations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "licensegate",
				Subsystem: "activation",
				Name:      "requests_total",
				Help:      "Activation attempts partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "licensegate",
				Subsystem: "activation",
				Name:      "duration_seconds",
				Help:      "Time spent deciding and persisting an activation.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "licensegate",
				Subsystem: "activation",
				Name:      "conflicts_total",
				Help:      "Conditional license updates rejected because the record changed.",
			},
		),
		lockUnavailable: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "licensegate",
				Subsystem: "activation",
				Name:      "lock_unavailable_total",
				Help:      "Activations that ran without the per-license lock.",
			},
		),
		auditPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "licensegate",
				Subsystem: "audit",
				Name:      "events_published_total",
				Help:      "Activation audit events handed to the stream.",
			},
			[]string{"status"},
		),
		auditProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "licensegate",
				Subsystem: "audit",
				Name:      "events_processed_total",
				Help:      "Activation audit events consumed by the worker.",
			},
			[]string{"status"},
		),
		auditDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "licensegate",
				Subsystem: "audit",
				Name:      "queue_depth",
				Help:      "Pending plus undelivered audit events.",
			},
		),
	}

	collectors := []prometheus.Collector{
		p.activations, p.duration, p.conflicts, p.lockUnavailable,
		p.auditPublished, p.auditProcessed, p.auditDepth,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// IncActivation increments the counter for outcome.
func (p *PrometheusRecorder) IncActivation(outcome string) {
	p.activations.WithLabelValues(outcome).Inc()
}

// ObserveActivationDuration records activation duration.
func (p *PrometheusRecorder) ObserveActivationDuration(duration time.Duration) {
	p.duration.Observe(duration.Seconds())
}

// IncActivationConflict increments the conflict counter.
func (p *PrometheusRecorder) IncActivationConflict() {
	p.conflicts.Inc()
}

// IncLockUnavailable increments the lock-unavailable counter.
func (p *PrometheusRecorder) IncLockUnavailable() {
	p.lockUnavailable.Inc()
}

// IncAuditEventPublished increments the publish counter for status.
func (p *PrometheusRecorder) IncAuditEventPublished(status string) {
	p.auditPublished.WithLabelValues(status).Inc()
}

// IncAuditEventProcessed increments the processing counter for status.
func (p *PrometheusRecorder) IncAuditEventProcessed(status string) {
	p.auditProcessed.WithLabelValues(status).Inc()
}

// SetAuditQueueDepth records the pending audit events.
func (p *PrometheusRecorder) SetAuditQueueDepth(depth int64) {
	p.auditDepth.Set(float64(depth))
}
