// Package metrics provides Prometheus metrics for the generation pipeline.
//
// Metrics are registered on an injected Registerer so tests and multiple
// in-process servers never collide on the default registry. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizforge"

// Metrics holds every collector the pipeline records into.
// No session, batch or unit ids appear in labels.
type Metrics struct {
	EventsPublished  *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	SessionsAttached prometheus.Gauge
	TransportErrors  prometheus.Counter
	BusForwarded     *prometheus.CounterVec

	JobTransitions *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec
	JobDuration    *prometheus.HistogramVec

	UnitsTerminal   *prometheus.CounterVec
	BatchesStarted  prometheus.Counter
	BatchesComplete prometheus.Counter
	BatchDuration   prometheus.Histogram
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Stream events published, by type and outcome (delivered|unattached).",
		}, []string{"type", "outcome"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Stream events dropped, by reason (timeout|phase).",
		}, []string{"reason"}),
		SessionsAttached: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "sessions_attached",
			Help:      "Sessions currently attached to this instance.",
		}),
		TransportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "transport_errors_total",
			Help:      "Sessions detached because of a transport failure.",
		}),
		BusForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "bus_messages_total",
			Help:      "Events crossing the instance bus, by direction (out|in).",
		}, []string{"direction"}),

		JobTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_transitions_total",
			Help:      "Job status transitions, by task kind and new status.",
		}, []string{"kind", "status"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Live jobs by status (queued|running).",
		}, []string{"status"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_attempt_seconds",
			Help:      "Duration of a single handler attempt, by task kind.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"kind"}),

		UnitsTerminal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "units_terminal_total",
			Help:      "Units reaching a terminal state, by outcome (completed|failed) and source.",
		}, []string{"outcome", "source"}),
		BatchesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "batches_started_total",
			Help:      "Batches accepted.",
		}),
		BatchesComplete: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "batches_completed_total",
			Help:      "Batches whose units all reached a terminal state.",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "batch_duration_seconds",
			Help:      "Wall time from batch start to batch-complete.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

// EventPublished records a publish attempt.
func (m *Metrics) EventPublished(eventType string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "unattached"
	}
	m.EventsPublished.WithLabelValues(eventType, outcome).Inc()
}

// EventDropped records an event discarded before delivery.
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// SessionAttached adjusts the attached-session gauge by delta.
func (m *Metrics) SessionAttached(delta int) {
	if m == nil {
		return
	}
	m.SessionsAttached.Add(float64(delta))
}

// TransportFailed counts a transport-forced detach.
func (m *Metrics) TransportFailed() {
	if m == nil {
		return
	}
	m.TransportErrors.Inc()
}

// BusMessage counts an event crossing the instance bus.
func (m *Metrics) BusMessage(direction string) {
	if m == nil {
		return
	}
	m.BusForwarded.WithLabelValues(direction).Inc()
}

// JobTransition records a job entering status.
func (m *Metrics) JobTransition(kind, status string) {
	if m == nil {
		return
	}
	m.JobTransitions.WithLabelValues(kind, status).Inc()
}

// SetQueueDepth publishes the live queued and running job counts.
func (m *Metrics) SetQueueDepth(queued, running int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues("queued").Set(float64(queued))
	m.QueueDepth.WithLabelValues("running").Set(float64(running))
}

// ObserveAttempt records one handler attempt duration in seconds.
func (m *Metrics) ObserveAttempt(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(kind).Observe(seconds)
}

// UnitTerminal records a unit's terminal outcome.
func (m *Metrics) UnitTerminal(completed bool, source string) {
	if m == nil {
		return
	}
	outcome := "completed"
	if !completed {
		outcome = "failed"
	}
	if source == "" {
		source = "none"
	}
	m.UnitsTerminal.WithLabelValues(outcome, source).Inc()
}

// BatchStarted counts an accepted batch.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.BatchesStarted.Inc()
}

// BatchCompleted counts a completed batch and its duration in seconds.
func (m *Metrics) BatchCompleted(seconds float64) {
	if m == nil {
		return
	}
	m.BatchesComplete.Inc()
	m.BatchDuration.Observe(seconds)
}
