package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/aurahealth/internal/domain"
)

// TokenStoreMetrics tracks persisted identity token operations.
type TokenStoreMetrics struct {
	Operations *prometheus.CounterVec
}

func NewTokenStoreMetrics(reg prometheus.Registerer) *TokenStoreMetrics {
	m := &TokenStoreMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token_store",
			Name:      "operations_total",
			Help:      "Token store operations by backend, operation and result.",
		}, []string{"backend", "operation", "result"}),
	}

	reg.MustRegister(m.Operations)
	return m
}

func (m *TokenStoreMetrics) Observe(backend, operation string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		result = "miss"
	case err != nil:
		result = "error"
	}
	m.Operations.WithLabelValues(backend, operation, result).Inc()
}
