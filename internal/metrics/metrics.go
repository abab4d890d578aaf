// Package metrics exposes Prometheus collectors for connections, messages and requests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const _namespace = "tickbridge"

// Collector groups every metric the bridge records.
//
// A nil *Collector is valid and records nothing.
type Collector struct {
	connectionsOpened prometheus.Counter
	connectionsClosed *prometheus.CounterVec
	connectionsOpen   prometheus.Gauge
	messagesSent      *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	sendsDropped      prometheus.Counter
	requests          *prometheus.CounterVec
}

// New creates a Collector and registers it on reg. A nil reg leaves the collectors unregistered,
// which tests use to avoid global state.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: "ws",
			Name:      "connections_opened_total",
			Help:      "WebSocket handshakes that succeeded.",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: "ws",
			Name:      "connections_closed_total",
			Help:      "WebSocket drivers that terminated, by reason.",
		}, []string{"reason"}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: _namespace,
			Subsystem: "ws",
			Name:      "connections_open",
			Help:      "WebSocket drivers currently in the open state.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Messages written to sockets, by kind.",
		}, []string{"kind"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: "ws",
			Name:      "messages_received_total",
			Help:      "Messages read from sockets, by kind.",
		}, []string{"kind"}),
		sendsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: "ws",
			Name:      "sends_rejected_total",
			Help:      "Send calls rejected because the connection was closed.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC calls completed, by outcome.",
		}, []string{"outcome"}),
	}

	if reg == nil {
		return c, nil
	}
	for _, m := range c.collectors() {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is New that panics on registration failure.
func MustNew(reg prometheus.Registerer) *Collector {
	c, err := New(reg)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.connectionsOpened,
		c.connectionsClosed,
		c.connectionsOpen,
		c.messagesSent,
		c.messagesReceived,
		c.sendsDropped,
		c.requests,
	}
}

// ConnectionOpened records a successful handshake.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsOpened.Inc()
	c.connectionsOpen.Inc()
}

// ConnectionClosed records driver termination. wasOpen tells whether the handshake had
// succeeded, so the open gauge stays balanced.
func (c *Collector) ConnectionClosed(reason string, wasOpen bool) {
	if c == nil {
		return
	}
	c.connectionsClosed.WithLabelValues(reason).Inc()
	if wasOpen {
		c.connectionsOpen.Dec()
	}
}

// MessageSent records a message written to a socket.
func (c *Collector) MessageSent(kind string) {
	if c == nil {
		return
	}
	c.messagesSent.WithLabelValues(kind).Inc()
}

// MessageReceived records a message read from a socket.
func (c *Collector) MessageReceived(kind string) {
	if c == nil {
		return
	}
	c.messagesReceived.WithLabelValues(kind).Inc()
}

// SendRejected records a Send call on a closed connection.
func (c *Collector) SendRejected() {
	if c == nil {
		return
	}
	c.sendsDropped.Inc()
}

// Request outcomes
const (
	OutcomeResult    = "result"
	OutcomeError     = "error"
	OutcomeTransport = "transport_error"
)

// RequestDone records a completed JSON-RPC call.
func (c *Collector) RequestDone(outcome string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(outcome).Inc()
}
