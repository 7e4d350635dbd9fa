package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/aurahealth/internal/domain"
)

var phases = []domain.Phase{
	domain.PhaseInit,
	domain.PhaseSettlingSettings,
	domain.PhaseNoSession,
	domain.PhaseSyncing,
	domain.PhaseAuthenticated,
	domain.PhaseError,
}

// SessionMetrics observes the session bootstrapper.
type SessionMetrics struct {
	SyncsTotal   *prometheus.CounterVec
	SyncDuration prometheus.Histogram
	Phase        *prometheus.GaugeVec
	AuthErrors   *prometheus.CounterVec
	Discarded    prometheus.Counter
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		SyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "syncs_total",
			Help:      "Backend sync exchanges by outcome (login, signup, me, failed).",
		}, []string{"outcome"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "sync_duration_seconds",
			Help:      "Duration of backend sync exchanges.",
			Buckets:   prometheus.DefBuckets,
		}),
		Phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "phase",
			Help:      "1 for the current session phase, 0 otherwise.",
		}, []string{"phase"}),
		AuthErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "auth_errors_total",
			Help:      "Auth errors surfaced to the session, by kind.",
		}, []string{"kind"}),
		Discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stale_results_discarded_total",
			Help:      "Sync results dropped because a newer sign-in change superseded them.",
		}),
	}

	reg.MustRegister(m.SyncsTotal, m.SyncDuration, m.Phase, m.AuthErrors, m.Discarded)
	for _, p := range phases {
		m.Phase.WithLabelValues(string(p)).Set(0)
	}
	return m
}

func (m *SessionMetrics) SyncCompleted(outcome string, d time.Duration) {
	m.SyncsTotal.WithLabelValues(outcome).Inc()
	m.SyncDuration.Observe(d.Seconds())
}

func (m *SessionMetrics) PhaseChanged(phase domain.Phase) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.Phase.WithLabelValues(string(p)).Set(v)
	}
}

func (m *SessionMetrics) AuthErrorRaised(kind domain.AuthErrorKind) {
	m.AuthErrors.WithLabelValues(string(kind)).Inc()
}

func (m *SessionMetrics) ResultDiscarded() {
	m.Discarded.Inc()
}
