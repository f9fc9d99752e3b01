// Package session owns the in-memory session registry and the age-based reaper.
package session

import (
	"crypto/subtle"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/deskpro/signaling-server/internal/model"
)

// Registry maps session IDs to session state. It is the single source of
// truth for routing decisions.
type Registry struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// Config holds configuration for the registry.
type Config struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config) *Registry {
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Registry{
		now:      config.Now,
		sessions: make(map[string]*model.Session),
	}
}

// CreateSession registers a new session hosted by hostConnID.
// Caller-chosen IDs are never overwritten.
func (r *Registry) CreateSession(id, secret, hostConnID string) error {
	if id == "" {
		return model.ErrSessionIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return model.ErrSessionExists
	}

	r.sessions[id] = &model.Session{
		ID:         id,
		HostConnID: hostConnID,
		Secret:     secret,
		Clients:    []string{},
		CreatedAt:  r.now(),
	}
	return nil
}

// JoinSession adds connID to the session's client list.
//
// ErrAlreadyMember is returned without touching state when connID is
// already a client; the membership check runs before the secret check.
func (r *Registry) JoinSession(id, secret, connID string) error {
	if id == "" {
		return model.ErrSessionIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	if !exists {
		return model.ErrSessionNotFound
	}

	if sess.HasClient(connID) {
		return model.ErrAlreadyMember
	}

	if sess.HasSecret() && subtle.ConstantTimeCompare([]byte(sess.Secret), []byte(secret)) != 1 {
		return model.ErrInvalidSecret
	}

	sess.Clients = append(sess.Clients, connID)
	return nil
}

// RemoveClient removes connID from the session's client list.
// Unknown sessions and non-members are ignored.
func (r *Registry) RemoveClient(id, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	if !exists {
		return
	}

	if i := slices.Index(sess.Clients, connID); i >= 0 {
		sess.Clients = slices.Delete(sess.Clients, i, i+1)
	}
}

// RemoveSession deletes the session and reports whether it existed.
func (r *Registry) RemoveSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	if !exists {
		return model.Session{}, false
	}
	return sess.Clone(), true
}

// SweepOlderThan removes every session created more than maxAge before now
// and returns the removed IDs in sorted order.
func (r *Registry) SweepOlderThan(maxAge time.Duration, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, sess := range r.sessions {
		if sess.Age(now) > maxAge {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}

	sort.Strings(removed)
	return removed
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns copies of all sessions, oldest first.
func (r *Registry) List() []model.Session {
	r.mu.RLock()
	list := make([]model.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		list = append(list, sess.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Now returns the registry's notion of the current time.
func (r *Registry) Now() time.Time {
	return r.now()
}
