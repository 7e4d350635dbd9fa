package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics tracks calls to the Aura backend.
type BackendMetrics struct {
	RequestDuration *prometheus.HistogramVec
	BreakerState    prometheus.Gauge
	BreakerChanges  *prometheus.CounterVec
	Retries         *prometheus.CounterVec
}

func NewBackendMetrics(reg prometheus.Registerer) *BackendMetrics {
	m := &BackendMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend requests by operation and status code (0 = transport error).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status_code"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_breaker_state",
			Help:      "Backend circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Backend circuit breaker transitions by target state.",
		}, []string{"state"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Retried backend requests by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.RequestDuration, m.BreakerState, m.BreakerChanges, m.Retries)
	return m
}

func (m *BackendMetrics) ObserveRequest(operation string, status int, d time.Duration) {
	m.RequestDuration.WithLabelValues(operation, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *BackendMetrics) BreakerTransition(state string, value float64) {
	m.BreakerState.Set(value)
	m.BreakerChanges.WithLabelValues(state).Inc()
}

func (m *BackendMetrics) RetryScheduled(operation string) {
	m.Retries.WithLabelValues(operation).Inc()
}
