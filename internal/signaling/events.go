// Package signaling pairs hosts with clients and relays negotiation traffic
// between them.
//
// The package implements:
//   - Lifecycle: tracks which session and role each connection holds
//   - Router: dispatch table from event name to handler, producing the
//     outbound messages the transport must deliver
//
// Handlers never perform I/O. They return Outbound values so the routing
// rules can be tested without a live transport.
package signaling

import "encoding/json"

// Event names exchanged with peers.
const (
	// Peer -> Server
	EventCreateSession = "create-session"
	EventJoinSession   = "join-session"
	EventLeaveSession  = "leave-session"
	EventOffer         = "offer"
	EventAnswer        = "answer"
	EventICECandidate  = "ice-candidate"
	EventMessage       = "message"

	// Server -> Peer
	EventConnected      = "connected"
	EventSessionCreated = "session-created"
	EventSessionJoined  = "session-joined"
	EventSessionError   = "session-error"
	EventPeerJoined     = "peer-joined"
	EventPeerLeft       = "peer-left"
)

// Error messages reported in session-error events.
const (
	msgSessionExists     = "Session already exists"
	msgSessionNotFound   = "Session not found"
	msgInvalidPassword   = "Invalid password"
	msgSessionIDRequired = "Session ID is required"
	msgAlreadyInSession  = "Already in a session"
	msgInvalidPayload    = "Invalid payload"

	reasonHostDisconnected = "Host disconnected"
)

// Envelope is the wire frame: a named event with a structured payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a message the transport delivers to one connection.
type Outbound struct {
	To      string
	Event   string
	Payload any
}

// Encode renders the outbound message as a wire frame.
func (o Outbound) Encode() ([]byte, error) {
	data, err := json.Marshal(o.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: o.Event, Data: data})
}

// SessionRequest is the payload of create-session and join-session.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
	Password  string `json:"password"`
}

// RelayRequest is the payload of the negotiation events and message.
// The relayed fields are kept as raw JSON and never inspected.
type RelayRequest struct {
	SessionID string          `json:"sessionId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

// RelayPayload is the forwarded form of a RelayRequest, tagged with the sender.
type RelayPayload struct {
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	From      string          `json:"from"`
}

// ConnectedPayload tells a peer its connection ID.
type ConnectedPayload struct {
	ID string `json:"id"`
}

// SessionPayload acknowledges session-created and session-joined.
type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

// ErrorPayload is the body of session-error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// PeerJoinedPayload notifies a host that a client joined.
type PeerJoinedPayload struct {
	PeerID    string `json:"peerId"`
	SessionID string `json:"sessionId"`
}

// PeerLeftPayload notifies a peer that the other side left.
type PeerLeftPayload struct {
	PeerID string `json:"peerId"`
	Reason string `json:"reason,omitempty"`
}
