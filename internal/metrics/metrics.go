// Package metrics exposes Prometheus instrumentation for the onboarding
// engine and coordinator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for transitions.
const (
	OutcomeAccepted = "accepted"
	OutcomeDenied   = "denied"
	OutcomeFailed   = "failed"
)

// EngineMetrics defines metrics operations needed by the workflow engine.
type EngineMetrics interface {
	ObserveTransition(op, outcome string)
	TrackStore(op string, f func() error) error
	SessionOpened()
	SessionReleased()
}

// CoordinatorMetrics defines metrics operations needed by the coordinator.
type CoordinatorMetrics interface {
	IncOnboardingsCompleted()
	IncEventsSeen()
}

// Metrics implements both EngineMetrics and CoordinatorMetrics.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	StoreDuration  *prometheus.HistogramVec
	ActiveSessions prometheus.Gauge

	Completed  prometheus.Counter
	EventsSeen prometheus.Counter
}

var _ EngineMetrics = (*Metrics)(nil)
var _ CoordinatorMetrics = (*Metrics)(nil)

// New registers the onboarding metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "transitions_total",
			Help:      "Workflow operations by outcome.",
		}, []string{"op", "outcome"}),
		StoreDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "onboarding",
			Name:      "store_duration_seconds",
			Help:      "Latency of progress store calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "onboarding",
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		Completed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "completed_total",
			Help:      "Onboardings that reached the terminal step.",
		}),
		EventsSeen: f.NewCounter(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "events_seen_total",
			Help:      "Step-changed events consumed by the coordinator.",
		}),
	}
}

func (m *Metrics) ObserveTransition(op, outcome string) {
	m.Transitions.WithLabelValues(op, outcome).Inc()
}

// TrackStore times f under the given store operation label.
func (m *Metrics) TrackStore(op string, f func() error) error {
	start := time.Now()
	err := f()
	m.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}

func (m *Metrics) SessionOpened()           { m.ActiveSessions.Inc() }
func (m *Metrics) SessionReleased()         { m.ActiveSessions.Dec() }
func (m *Metrics) IncOnboardingsCompleted() { m.Completed.Inc() }
func (m *Metrics) IncEventsSeen()           { m.EventsSeen.Inc() }

// Nop discards everything.
type Nop struct{}

var _ EngineMetrics = Nop{}
var _ CoordinatorMetrics = Nop{}

func (Nop) ObserveTransition(string, string)          {}
func (Nop) TrackStore(_ string, f func() error) error { return f() }
func (Nop) SessionOpened()                            {}
func (Nop) SessionReleased()                          {}
func (Nop) IncOnboardingsCompleted()                  {}
func (Nop) IncEventsSeen()                            {}
