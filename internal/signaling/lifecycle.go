package signaling

import (
	"sync"

	"github.com/deskpro/signaling-server/internal/audit"
	"github.com/deskpro/signaling-server/internal/metrics"
	"github.com/deskpro/signaling-server/internal/model"
	"github.com/deskpro/signaling-server/internal/session"
	"github.com/rs/zerolog"
)

// Lifecycle tracks the session and role of every live connection and tears
// down membership when a connection leaves. Connections reference sessions
// by ID only; the registry owns the session records.
type Lifecycle struct {
	registry *session.Registry
	log      zerolog.Logger
	metrics  *metrics.Metrics
	recorder audit.Recorder

	mu    sync.RWMutex
	conns map[string]model.Assignment
}

// LifecycleConfig holds configuration for the lifecycle manager.
type LifecycleConfig struct {
	Logger   *zerolog.Logger
	Metrics  *metrics.Metrics
	Recorder audit.Recorder
}

// NewLifecycle creates a lifecycle manager backed by registry.
func NewLifecycle(registry *session.Registry, config LifecycleConfig) *Lifecycle {
	if config.Recorder == nil {
		config.Recorder = audit.Nop{}
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	return &Lifecycle{
		registry: registry,
		log:      log,
		metrics:  config.Metrics,
		recorder: config.Recorder,
		conns:    make(map[string]model.Assignment),
	}
}

// Connect starts tracking a connection with no session.
func (l *Lifecycle) Connect(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.conns[connID]; !ok {
		l.conns[connID] = model.Assignment{}
	}
}

// Forget stops tracking a connection.
func (l *Lifecycle) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, connID)
}

// AssignHost records connID as the host of sessionID.
func (l *Lifecycle) AssignHost(connID, sessionID string) {
	l.assign(connID, model.Assignment{SessionID: sessionID, Role: model.RoleHost})
}

// AssignClient records connID as a client of sessionID.
func (l *Lifecycle) AssignClient(connID, sessionID string) {
	l.assign(connID, model.Assignment{SessionID: sessionID, Role: model.RoleClient})
}

func (l *Lifecycle) assign(connID string, a model.Assignment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conns[connID] = a
}

// Resolve returns the connection's assignment. ok is false when the
// connection is unknown or holds no session.
func (l *Lifecycle) Resolve(connID string) (model.Assignment, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, exists := l.conns[connID]
	if !exists || !a.Assigned() {
		return model.Assignment{}, false
	}
	return a, true
}

// ActiveAssignment is like Resolve but also requires the connection to still
// be a member of that session. Assignments to sessions the reaper evicted
// are stale, even if the ID has since been reused.
func (l *Lifecycle) ActiveAssignment(connID string) (model.Assignment, bool) {
	a, ok := l.Resolve(connID)
	if !ok {
		return model.Assignment{}, false
	}

	sess, exists := l.registry.Get(a.SessionID)
	if !exists {
		return model.Assignment{}, false
	}
	if (a.Role == model.RoleHost && !sess.IsHost(connID)) || (a.Role == model.RoleClient && !sess.HasClient(connID)) {
		return model.Assignment{}, false
	}
	return a, true
}

// Count returns the number of tracked connections.
func (l *Lifecycle) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conns)
}

// OnDisconnect removes connID from its session and returns the peer
// notifications to deliver. A departing host closes its session and every
// client is told why; a departing client only notifies the host. It is safe
// to call more than once for the same connection.
func (l *Lifecycle) OnDisconnect(connID string) []Outbound {
	a, ok := l.Resolve(connID)
	if !ok {
		return nil
	}
	defer l.clear(connID)

	sess, exists := l.registry.Get(a.SessionID)
	if !exists {
		return nil
	}

	var out []Outbound
	switch {
	case a.Role == model.RoleHost && sess.IsHost(connID):
		for _, clientID := range sess.Clients {
			out = append(out, Outbound{
				To:      clientID,
				Event:   EventPeerLeft,
				Payload: PeerLeftPayload{PeerID: connID, Reason: reasonHostDisconnected},
			})
		}
		l.registry.RemoveSession(sess.ID)

		l.metrics.Inc(metrics.SessionsClosed)
		l.recorder.Record(model.AuditEvent{SessionID: sess.ID, ConnID: connID, Kind: model.AuditSessionClosed, Detail: "host disconnected"})
		l.log.Info().Str("session_id", sess.ID).Str("conn_id", connID).Int("clients", len(sess.Clients)).Msg("session closed")

	case a.Role == model.RoleClient && sess.HasClient(connID):
		l.registry.RemoveClient(sess.ID, connID)
		out = append(out, Outbound{
			To:      sess.HostConnID,
			Event:   EventPeerLeft,
			Payload: PeerLeftPayload{PeerID: connID},
		})

		l.metrics.Inc(metrics.ClientsLeft)
		l.recorder.Record(model.AuditEvent{SessionID: sess.ID, ConnID: connID, Kind: model.AuditClientLeft})
		l.log.Info().Str("session_id", sess.ID).Str("conn_id", connID).Msg("client left session")
	}

	return out
}

// clear resets the connection to unassigned if it is still tracked.
func (l *Lifecycle) clear(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.conns[connID]; exists {
		l.conns[connID] = model.Assignment{}
	}
}
