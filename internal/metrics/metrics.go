// Package metrics provides Prometheus instrumentation for the SASL
// broker: session lifecycle gauges, mechanism outcome counters, and
// reaper activity, registered the way the teacher's lock subsystem
// registers its own metric set.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Label constants used across the metric vectors below.
const (
	LabelMechanism = "mechanism"
	LabelStatus    = "status"
	LabelReason    = "reason"
)

// Status label values for mechanism exchange counters.
const (
	StatusMore = "more"
	StatusDone = "done"
	StatusFail = "fail"
	StatusErr  = "error"
)

// Reason label values for session destruction counters.
const (
	ReasonCompleted = "completed"
	ReasonFailed    = "failed"
	ReasonAborted   = "aborted"
	ReasonReaped    = "reaped"
)

// Metrics holds the broker's Prometheus instrumentation.
type Metrics struct {
	sessionsActive     prometheus.Gauge
	sessionsCreated    prometheus.Counter
	sessionsDestroyed  *prometheus.CounterVec
	mechanismExchanges *prometheus.CounterVec
	reaperSweeps       prometheus.Counter
	reaperDestroyed    prometheus.Counter
}

// New creates and registers broker metrics against registry. If registry
// is nil, metrics are created but not registered, useful for tests.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "saslbroker",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of in-flight SASL sessions.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "saslbroker",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of SASL sessions created.",
		}),
		sessionsDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saslbroker",
			Subsystem: "sessions",
			Name:      "destroyed_total",
			Help:      "Total number of SASL sessions destroyed, by reason.",
		}, []string{LabelReason}),
		mechanismExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saslbroker",
			Subsystem: "mechanism",
			Name:      "exchanges_total",
			Help:      "Total number of mechanism Start/Step calls, by mechanism and resulting status.",
		}, []string{LabelMechanism, LabelStatus}),
		reaperSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "saslbroker",
			Subsystem: "reaper",
			Name:      "sweeps_total",
			Help:      "Total number of reaper sweep ticks that destroyed at least one session.",
		}),
		reaperDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "saslbroker",
			Subsystem: "reaper",
			Name:      "destroyed_total",
			Help:      "Total number of sessions destroyed by the reaper.",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.sessionsActive,
			m.sessionsCreated,
			m.sessionsDestroyed,
			m.mechanismExchanges,
			m.reaperSweeps,
			m.reaperDestroyed,
		)
	}

	return m
}

// SessionCreated records a new session and adjusts the active gauge.
func (m *Metrics) SessionCreated() {
	m.sessionsCreated.Inc()
	m.sessionsActive.Inc()
}

// SessionDestroyed records a session leaving, by reason, and adjusts the
// active gauge.
func (m *Metrics) SessionDestroyed(reason string) {
	m.sessionsDestroyed.WithLabelValues(reason).Inc()
	m.sessionsActive.Dec()
}

// MechanismExchange records one Start/Step call outcome.
func (m *Metrics) MechanismExchange(mechanismName, status string) {
	m.mechanismExchanges.WithLabelValues(mechanismName, status).Inc()
}

// RecordReaped satisfies reaper.Recorder. The reaper calls it only for
// sweeps that destroyed at least one session.
func (m *Metrics) RecordReaped(n int) {
	m.reaperSweeps.Inc()
	m.reaperDestroyed.Add(float64(n))
}
