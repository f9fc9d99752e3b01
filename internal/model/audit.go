package model

import "time"

// AuditKind names a session lifecycle transition recorded in the audit journal.
type AuditKind string

const (
	AuditSessionCreated AuditKind = "created"
	AuditClientJoined   AuditKind = "joined"
	AuditClientLeft     AuditKind = "left"
	AuditSessionClosed  AuditKind = "closed"
	AuditSessionEvicted AuditKind = "evicted"
)

// AuditEvent is one row of the audit journal. It never carries relayed payloads.
type AuditEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	ConnID    string    `json:"connId,omitempty"`
	Kind      AuditKind `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
