package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records bootstrap diagnostics. A nil *Metrics is a no-op.
type Metrics struct {
	PhaseDuration *prometheus.HistogramVec
	PhaseResults  *prometheus.CounterVec
	Outcomes      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "launchpad",
			Subsystem: "bootstrap",
			Name:      "phase_duration_seconds",
			Help:      "Time from phase start until it resolved or was abandoned.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"phase", "status"}),
		PhaseResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpad",
			Subsystem: "bootstrap",
			Name:      "phase_results_total",
			Help:      "Resolved phases by terminal status.",
		}, []string{"phase", "status"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpad",
			Subsystem: "bootstrap",
			Name:      "outcomes_total",
			Help:      "Bootstrap attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observePhase(name, status string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(name, status).Observe(seconds)
	m.PhaseResults.WithLabelValues(name, status).Inc()
}

func (m *Metrics) observeOutcome(kind string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(kind).Inc()
}
