// Package rmetrics exposes Prometheus instrumentation for the
// connection's counters: a small registry of counters/gauges updated
// by the transport layer and served over HTTP.
package rmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters and gauges pkg/transport updates as it
// drives connections.
type Metrics struct {
	PacketsSent        prometheus.Counter
	PacketsReceived    prometheus.Counter
	PacketsDropped     prometheus.Counter
	PacketsRetransmitted prometheus.Counter
	ConnectionsActive  prometheus.Gauge
	ConnectionsOpened  prometheus.Counter
	ConnectionsClosed  prometheus.Counter

	registry *prometheus.Registry
}

// New builds a Metrics bundle registered on a dedicated registry (not
// the global default, so embedding this package never collides with a
// host process's own metrics).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reliudp_packets_sent_total",
			Help: "Datagrams handed to the UDP socket.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reliudp_packets_received_total",
			Help: "Datagrams read off the UDP socket, before validation.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reliudp_packets_dropped_total",
			Help: "Datagrams discarded for failing checksum, window, or duplicate checks.",
		}),
		PacketsRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reliudp_packets_retransmitted_total",
			Help: "Segments resent by the per-tick retransmission sweep.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reliudp_connections_active",
			Help: "Connections that have not yet reached the four-flag teardown condition.",
		}),
		ConnectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reliudp_connections_opened_total",
			Help: "Connections created since process start.",
		}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reliudp_connections_closed_total",
			Help: "Connections destroyed since process start.",
		}),
	}
	reg.MustRegister(
		m.PacketsSent,
		m.PacketsReceived,
		m.PacketsDropped,
		m.PacketsRetransmitted,
		m.ConnectionsActive,
		m.ConnectionsOpened,
		m.ConnectionsClosed,
	)
	return m
}

// Handler returns the HTTP handler serving this bundle's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
