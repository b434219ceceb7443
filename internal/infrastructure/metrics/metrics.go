// Package metrics exposes Prometheus collectors for the connection hub and the
// event bridge. All recording methods are safe on a nil *Metrics so that
// components can run without instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notification"

type Metrics struct {
	registry *prometheus.Registry

	connectionsActive   prometheus.Gauge
	connectionsTotal    *prometheus.CounterVec
	broadcastsTotal     prometheus.Counter
	broadcastRecipients prometheus.Counter
	droppedSends        prometheus.Counter
	inboundMessages     *prometheus.CounterVec
	busMessages         *prometheus.CounterVec
	busPublishes        *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections_active",
			Help:      "Number of client connections currently registered.",
		}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections_total",
			Help:      "Client connections accepted, by transport.",
		}, []string{"transport"}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Broadcast calls issued.",
		}),
		broadcastRecipients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_recipients_total",
			Help:      "Delivery attempts made by broadcasts.",
		}),
		droppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "dropped_sends_total",
			Help:      "Messages that could not be queued to a client.",
		}),
		inboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "inbound_messages_total",
			Help:      "Messages received from clients, by type.",
		}, []string{"type"}),
		busMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "bus_messages_total",
			Help:      "Messages received from the bus, by channel and result.",
		}, []string{"channel", "result"}),
		busPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "bus_publishes_total",
			Help:      "Messages published to the bus, by channel and result.",
		}, []string{"channel", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionsActive,
		m.connectionsTotal,
		m.broadcastsTotal,
		m.broadcastRecipients,
		m.droppedSends,
		m.inboundMessages,
		m.busMessages,
		m.busPublishes,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened(transport string) {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) ConnectionsReset() {
	if m == nil {
		return
	}
	m.connectionsActive.Set(0)
}

func (m *Metrics) Broadcast(recipients int) {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
	m.broadcastRecipients.Add(float64(recipients))
}

func (m *Metrics) SendDropped() {
	if m == nil {
		return
	}
	m.droppedSends.Inc()
}

func (m *Metrics) InboundMessage(msgType string) {
	if m == nil {
		return
	}
	m.inboundMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) BusMessage(channel, result string) {
	if m == nil {
		return
	}
	m.busMessages.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) BusPublish(channel, result string) {
	if m == nil {
		return
	}
	m.busPublishes.WithLabelValues(channel, result).Inc()
}
