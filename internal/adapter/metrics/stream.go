package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics tracks WebSocket subscribers of the session state stream.
type StreamMetrics struct {
	ActiveConnections prometheus.Gauge
	MessagesSent      *prometheus.CounterVec
	SlowClientDrops   prometheus.Counter
}

func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_connections",
			Help:      "Number of connected session stream clients.",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_sent_total",
			Help:      "Messages queued to stream clients by type.",
		}, []string{"type"}),
		SlowClientDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "slow_client_drops_total",
			Help:      "Clients disconnected because their send buffer was full.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesSent, m.SlowClientDrops)
	return m
}

func (m *StreamMetrics) ClientConnected()    { m.ActiveConnections.Inc() }
func (m *StreamMetrics) ClientDisconnected() { m.ActiveConnections.Dec() }
func (m *StreamMetrics) SlowClientDropped()  { m.SlowClientDrops.Inc() }

func (m *StreamMetrics) MessageQueued(kind string) {
	m.MessagesSent.WithLabelValues(kind).Inc()
}
