package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Tyrowin/groupchat/internal/chat"
)

// Metrics instruments the hub. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connectedClients  prometheus.Gauge
	publishedEvents   *prometheus.CounterVec
	droppedDeliveries prometheus.Counter
}

// NewMetrics registers the hub collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "groupchat",
			Subsystem: "hub",
			Name:      "connected_clients",
			Help:      "Number of users with an open WebSocket connection.",
		}),
		publishedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupchat",
			Subsystem: "hub",
			Name:      "published_events_total",
			Help:      "Events fanned out to connected clients, by kind.",
		}, []string{"event"}),
		droppedDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupchat",
			Subsystem: "hub",
			Name:      "dropped_clients_total",
			Help:      "Clients disconnected because their send buffer was full.",
		}),
	}
}

func (m *Metrics) setConnected(n int) {
	if m == nil {
		return
	}
	m.connectedClients.Set(float64(n))
}

func (m *Metrics) published(kind chat.EventKind) {
	if m == nil {
		return
	}
	m.publishedEvents.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.droppedDeliveries.Inc()
}
