package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the bus counters. A nil registerer keeps them unregistered.
type Metrics struct {
	Subscribers prometheus.Gauge
	Rooms       prometheus.Gauge
	Delivered   prometheus.Counter
	Dropped     prometheus.Counter
}

// NewMetrics creates and registers the bus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pairchat", Subsystem: "bus", Name: "subscribers",
			Help: "Currently joined subscribers across all rooms.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pairchat", Subsystem: "bus", Name: "rooms",
			Help: "Rooms with at least one subscriber.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pairchat", Subsystem: "bus", Name: "delivered_total",
			Help: "Messages handed to subscriber queues.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pairchat", Subsystem: "bus", Name: "dropped_total",
			Help: "Messages dropped because a subscriber queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Subscribers, m.Rooms, m.Delivered, m.Dropped)
	}
	return m
}
