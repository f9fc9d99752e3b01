// Package metrics keeps in-process event counters for the signaling server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Counter names, used as the value of the `event` label.
const (
	EventsReceived      = "events_received"
	EventsForwarded     = "events_forwarded"
	EventsDroppedNoSess = "events_dropped_no_session"
	EventsUnknown       = "events_unknown"
	EventsInvalid       = "events_invalid"
	EventsRateLimited   = "events_rate_limited"
	SessionsCreated     = "sessions_created"
	SessionsJoined      = "sessions_joined"
	SessionsClosed      = "sessions_closed"
	SessionsEvicted     = "sessions_evicted"
	SessionErrors       = "session_errors"
	ClientsLeft         = "clients_left"
	ConnectionsOpened   = "connections_opened"
	ConnectionsClosed   = "connections_closed"
	SendQueueOverflow   = "send_queue_overflow"
	AuditDropped        = "audit_dropped"
	AuditWriteErrors    = "audit_write_errors"
)

// Metrics owns a private Prometheus registry holding one counter family
// with an `event` label. A nil *Metrics discards every update, so
// components can run without one.
type Metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

func New() *Metrics {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signaling_server",
			Name:      "events_total",
			Help:      "Internal event counters.",
		},
		[]string{"event"},
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(events)

	return &Metrics{
		registry: registry,
		events:   events,
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.events.WithLabelValues(name).Add(float64(n))
}

// Get returns the current value of a counter.
func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}

	var pb dto.Metric
	if err := m.events.WithLabelValues(name).Write(&pb); err != nil {
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}
