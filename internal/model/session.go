package model

import (
	"slices"
	"time"
)

// Role is the part a connection plays in a session.
type Role string

const (
	RoleUnassigned Role = ""
	RoleHost       Role = "host"
	RoleClient     Role = "client"
)

// Session is a named pairing context with one host and zero or more clients.
type Session struct {
	ID         string    `json:"id"`
	HostConnID string    `json:"hostId"`
	Secret     string    `json:"-"`
	Clients    []string  `json:"clients"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasSecret reports whether joining requires a password.
func (s *Session) HasSecret() bool {
	return s.Secret != ""
}

// HasClient reports whether connID is joined as a client.
func (s *Session) HasClient(connID string) bool {
	return slices.Contains(s.Clients, connID)
}

// IsHost reports whether connID created the session.
func (s *Session) IsHost(connID string) bool {
	return s.HostConnID == connID
}

// Members returns the host followed by every client.
func (s *Session) Members() []string {
	members := make([]string, 0, len(s.Clients)+1)
	members = append(members, s.HostConnID)
	return append(members, s.Clients...)
}

// Age returns how long ago the session was created, relative to now.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() Session {
	c := *s
	c.Clients = slices.Clone(s.Clients)
	if c.Clients == nil {
		c.Clients = []string{}
	}
	return c
}

// Assignment is the session and role currently held by a connection.
type Assignment struct {
	SessionID string `json:"sessionId,omitempty"`
	Role      Role   `json:"role,omitempty"`
}

// Assigned reports whether the connection belongs to a session.
func (a Assignment) Assigned() bool {
	return a.Role != RoleUnassigned && a.SessionID != ""
}
