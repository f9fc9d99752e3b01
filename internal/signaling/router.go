package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/deskpro/signaling-server/internal/audit"
	"github.com/deskpro/signaling-server/internal/metrics"
	"github.com/deskpro/signaling-server/internal/model"
	"github.com/deskpro/signaling-server/internal/session"
	"github.com/rs/zerolog"
)

// handlerFunc handles one inbound event from a connection and returns the
// messages to deliver.
type handlerFunc func(from string, data json.RawMessage) []Outbound

// Router dispatches inbound events by name. All handlers run under one
// mutex so that registry and lifecycle changes made for one event are never
// interleaved with another event's.
type Router struct {
	registry  *session.Registry
	lifecycle *Lifecycle
	log       zerolog.Logger
	metrics   *metrics.Metrics
	recorder  audit.Recorder

	mu       sync.Mutex
	handlers map[string]handlerFunc
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger   *zerolog.Logger
	Metrics  *metrics.Metrics
	Recorder audit.Recorder
}

// NewRouter creates a router over registry and lifecycle.
func NewRouter(registry *session.Registry, lifecycle *Lifecycle, config RouterConfig) *Router {
	if config.Recorder == nil {
		config.Recorder = audit.Nop{}
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	r := &Router{
		registry:  registry,
		lifecycle: lifecycle,
		log:       log,
		metrics:   config.Metrics,
		recorder:  config.Recorder,
	}

	r.handlers = map[string]handlerFunc{
		EventCreateSession: r.handleCreate,
		EventJoinSession:   r.handleJoin,
		EventLeaveSession:  r.handleLeave,
		EventOffer:         r.relayNegotiation(EventOffer),
		EventAnswer:        r.relayNegotiation(EventAnswer),
		EventICECandidate:  r.relayNegotiation(EventICECandidate),
		EventMessage:       r.handleMessage,
	}

	return r
}

// Events returns the names of the inbound events the router understands.
func (r *Router) Events() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connect registers a new transport connection and greets it with its ID.
func (r *Router) Connect(connID string) []Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lifecycle.Connect(connID)
	return []Outbound{{To: connID, Event: EventConnected, Payload: ConnectedPayload{ID: connID}}}
}

// Handle processes one inbound event. Unknown events are dropped.
func (r *Router) Handle(connID, event string, data json.RawMessage) []Outbound {
	r.metrics.Inc(metrics.EventsReceived)

	handler, ok := r.handlers[event]
	if !ok {
		r.metrics.Inc(metrics.EventsUnknown)
		r.log.Debug().Str("conn_id", connID).Str("event", event).Msg("dropping unknown event")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return handler(connID, data)
}

// Disconnect tears down a closed transport connection.
func (r *Router) Disconnect(connID string) []Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.lifecycle.OnDisconnect(connID)
	r.lifecycle.Forget(connID)
	r.metrics.Add(metrics.EventsForwarded, uint64(len(out)))
	return out
}

// SessionCount returns the number of active sessions.
func (r *Router) SessionCount() int {
	return r.registry.Count()
}

// ConnectionCount returns the number of live connections.
func (r *Router) ConnectionCount() int {
	return r.lifecycle.Count()
}

func (r *Router) handleCreate(from string, data json.RawMessage) []Outbound {
	var req SessionRequest
	if err := decode(data, &req); err != nil {
		return r.reject(from, EventCreateSession, err)
	}

	if _, busy := r.lifecycle.ActiveAssignment(from); busy {
		return r.reject(from, EventCreateSession, model.ErrAlreadyAssigned)
	}

	if err := r.registry.CreateSession(req.SessionID, req.Password, from); err != nil {
		return r.reject(from, EventCreateSession, err)
	}
	r.lifecycle.AssignHost(from, req.SessionID)

	r.metrics.Inc(metrics.SessionsCreated)
	r.recorder.Record(model.AuditEvent{SessionID: req.SessionID, ConnID: from, Kind: model.AuditSessionCreated})
	r.log.Info().Str("session_id", req.SessionID).Str("conn_id", from).Bool("password", req.Password != "").Msg("session created")

	return []Outbound{{To: from, Event: EventSessionCreated, Payload: SessionPayload{SessionID: req.SessionID}}}
}

func (r *Router) handleJoin(from string, data json.RawMessage) []Outbound {
	var req SessionRequest
	if err := decode(data, &req); err != nil {
		return r.reject(from, EventJoinSession, err)
	}

	if a, busy := r.lifecycle.ActiveAssignment(from); busy && !(a.Role == model.RoleClient && a.SessionID == req.SessionID) {
		return r.reject(from, EventJoinSession, model.ErrAlreadyAssigned)
	}

	err := r.registry.JoinSession(req.SessionID, req.Password, from)
	if errors.Is(err, model.ErrAlreadyMember) {
		r.log.Debug().Str("session_id", req.SessionID).Str("conn_id", from).Msg("client already in session, ignoring duplicate join")
		return nil
	}
	if err != nil {
		return r.reject(from, EventJoinSession, err)
	}
	r.lifecycle.AssignClient(from, req.SessionID)

	sess, _ := r.registry.Get(req.SessionID)

	r.metrics.Inc(metrics.SessionsJoined)
	r.recorder.Record(model.AuditEvent{SessionID: req.SessionID, ConnID: from, Kind: model.AuditClientJoined})
	r.log.Info().Str("session_id", req.SessionID).Str("conn_id", from).Int("clients", len(sess.Clients)).Msg("client joined session")

	// The client hears about its own join before the host is asked to offer.
	out := []Outbound{
		{To: from, Event: EventSessionJoined, Payload: SessionPayload{SessionID: req.SessionID}},
		{To: sess.HostConnID, Event: EventPeerJoined, Payload: PeerJoinedPayload{PeerID: from, SessionID: req.SessionID}},
	}
	r.metrics.Inc(metrics.EventsForwarded)
	return out
}

func (r *Router) handleLeave(from string, _ json.RawMessage) []Outbound {
	out := r.lifecycle.OnDisconnect(from)
	r.metrics.Add(metrics.EventsForwarded, uint64(len(out)))
	return out
}

// relayNegotiation forwards offer, answer and ice-candidate events. A host
// fans out to every client; anyone else reaches the host only.
func (r *Router) relayNegotiation(event string) handlerFunc {
	return func(from string, data json.RawMessage) []Outbound {
		var req RelayRequest
		if err := decode(data, &req); err != nil {
			return r.reject(from, event, err)
		}

		sess, ok := r.registry.Get(req.SessionID)
		if !ok {
			r.metrics.Inc(metrics.EventsDroppedNoSess)
			r.log.Debug().Str("session_id", req.SessionID).Str("conn_id", from).Str("event", event).Msg("dropping event for unknown session")
			return nil
		}

		payload := RelayPayload{From: from}
		switch event {
		case EventOffer:
			payload.Offer = req.Offer
		case EventAnswer:
			payload.Answer = req.Answer
		case EventICECandidate:
			payload.Candidate = req.Candidate
		}

		// The sender's own role picks the direction, whichever session the
		// payload names.
		var targets []string
		if a, _ := r.lifecycle.Resolve(from); a.Role == model.RoleHost {
			targets = sess.Clients
		} else {
			targets = []string{sess.HostConnID}
		}

		return r.fanOut(targets, event, payload)
	}
}

// handleMessage broadcasts a free-form message to every other member of the
// session, whatever the sender's role.
func (r *Router) handleMessage(from string, data json.RawMessage) []Outbound {
	var req RelayRequest
	if err := decode(data, &req); err != nil {
		return r.reject(from, EventMessage, err)
	}

	sess, ok := r.registry.Get(req.SessionID)
	if !ok {
		r.metrics.Inc(metrics.EventsDroppedNoSess)
		return nil
	}

	targets := make([]string, 0, len(sess.Clients))
	for _, member := range sess.Members() {
		if member != from {
			targets = append(targets, member)
		}
	}

	return r.fanOut(targets, EventMessage, RelayPayload{Message: req.Message, From: from})
}

func (r *Router) fanOut(targets []string, event string, payload any) []Outbound {
	out := make([]Outbound, 0, len(targets))
	for _, to := range targets {
		out = append(out, Outbound{To: to, Event: event, Payload: payload})
	}
	r.metrics.Add(metrics.EventsForwarded, uint64(len(out)))
	return out
}

// reject reports err to the sender as a session-error.
func (r *Router) reject(to, event string, err error) []Outbound {
	r.metrics.Inc(metrics.SessionErrors)
	r.log.Debug().Err(err).Str("conn_id", to).Str("event", event).Msg("rejecting event")
	return []Outbound{{To: to, Event: EventSessionError, Payload: ErrorPayload{Message: errorMessage(err)}}}
}

var errInvalidPayload = errors.New("invalid payload")

// decode unmarshals an event payload. A missing payload leaves v untouched.
func decode(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return errors.Join(errInvalidPayload, err)
	}
	return nil
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrSessionExists):
		return msgSessionExists
	case errors.Is(err, model.ErrSessionNotFound):
		return msgSessionNotFound
	case errors.Is(err, model.ErrInvalidSecret):
		return msgInvalidPassword
	case errors.Is(err, model.ErrSessionIDRequired):
		return msgSessionIDRequired
	case errors.Is(err, model.ErrAlreadyAssigned):
		return msgAlreadyInSession
	default:
		return msgInvalidPayload
	}
}
