package realtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the realtime fabric. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	connections  *prometheus.GaugeVec
	broadcasts   *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	drops        *prometheus.CounterVec
	availability prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "groupsync",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open WebSocket connections by room namespace.",
		}, []string{"namespace"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupsync",
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Broadcasts issued, by room namespace and origin (notifier or relay).",
		}, []string{"namespace", "origin"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupsync",
			Subsystem: "realtime",
			Name:      "deliveries_total",
			Help:      "Frames enqueued to subscribers, by room namespace.",
		}, []string{"namespace"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupsync",
			Subsystem: "realtime",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers dropped because their send queue was full or closed.",
		}, []string{"namespace"}),
		availability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "groupsync",
			Subsystem: "availability",
			Name:      "computation_seconds",
			Help:      "Time spent computing availability reports.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.broadcasts, m.deliveries, m.drops, m.availability)
	}
	return m
}

func (m *Metrics) connectionOpened(key RoomKey) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(string(key.Namespace)).Inc()
}

func (m *Metrics) connectionClosed(key RoomKey) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(string(key.Namespace)).Dec()
}

func (m *Metrics) broadcast(key RoomKey, origin string, delivered, dropped int) {
	if m == nil {
		return
	}
	ns := string(key.Namespace)
	m.broadcasts.WithLabelValues(ns, origin).Inc()
	m.deliveries.WithLabelValues(ns).Add(float64(delivered))
	if dropped > 0 {
		m.drops.WithLabelValues(ns).Add(float64(dropped))
	}
}

// ObserveAvailability records the duration of one availability computation.
func (m *Metrics) ObserveAvailability(d time.Duration) {
	if m == nil {
		return
	}
	m.availability.Observe(d.Seconds())
}
