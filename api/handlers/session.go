// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/deskpro/signaling-server/internal/model"
	"github.com/gin-gonic/gin"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// SessionStore is the read side of the session registry.
type SessionStore interface {
	List() []model.Session
	Get(id string) (model.Session, bool)
	Now() time.Time
}

// AuditReader reads the session audit journal.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]*model.AuditEvent, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*model.AuditEvent, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
}

// SessionHandler serves read-only views of live sessions and their history.
type SessionHandler struct {
	sessions SessionStore
	audit    AuditReader
}

// NewSessionHandler creates a new SessionHandler. audit may be nil when the
// journal is disabled.
func NewSessionHandler(sessions SessionStore, audit AuditReader) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		audit:    audit,
	}
}

// SessionResponse represents a session in API responses. The password is
// never exposed.
type SessionResponse struct {
	ID          string   `json:"id"`
	HostID      string   `json:"hostId"`
	Clients     []string `json:"clients"`
	ClientCount int      `json:"clientCount"`
	HasPassword bool     `json:"hasPassword"`
	CreatedAt   string   `json:"createdAt"`
	Age         string   `json:"age"`
	EventCount  *int     `json:"eventCount,omitempty"`
}

// AuditEventResponse represents a journal entry in API responses.
type AuditEventResponse struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionId"`
	ConnID    string `json:"connId,omitempty"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toSessionResponse(s *model.Session, now time.Time) *SessionResponse {
	clients := make([]string, len(s.Clients))
	copy(clients, s.Clients)

	return &SessionResponse{
		ID:          s.ID,
		HostID:      s.HostConnID,
		Clients:     clients,
		ClientCount: len(clients),
		HasPassword: s.HasSecret(),
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		Age:         formatDuration(s.Age(now)),
	}
}

func toAuditEventResponses(events []*model.AuditEvent) []*AuditEventResponse {
	response := make([]*AuditEventResponse, len(events))
	for i, e := range events {
		response[i] = &AuditEventResponse{
			ID:        e.ID,
			SessionID: e.SessionID,
			ConnID:    e.ConnID,
			Kind:      string(e.Kind),
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	return response
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// parseLimit reads the limit query parameter, clamped to maxEventLimit.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultEventLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
		return 0, false
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	return limit, true
}

// List handles GET /api/sessions - lists all active sessions.
func (h *SessionHandler) List(c *gin.Context) {
	now := h.sessions.Now()
	sessions := h.sessions.List()

	response := make([]*SessionResponse, len(sessions))
	for i := range sessions {
		response[i] = toSessionResponse(&sessions[i], now)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id - gets a specific session, with its
// journal size when auditing is on.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}

	response := toSessionResponse(&sess, h.sessions.Now())
	if h.audit != nil {
		count, err := h.audit.CountBySession(c.Request.Context(), sessionID)
		if err != nil {
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to count events: "+err.Error())
			return
		}
		response.EventCount = &count
	}

	c.JSON(http.StatusOK, response)
}

// SessionEvents handles GET /api/sessions/:id/events - the journal of one
// session, oldest first. Closed and evicted sessions keep their history.
func (h *SessionHandler) SessionEvents(c *gin.Context) {
	if h.audit == nil {
		sendError(c, http.StatusServiceUnavailable, "AUDIT_DISABLED", "Audit journal is disabled")
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	events, err := h.audit.ListBySession(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list events: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toAuditEventResponses(events))
}

// RecentEvents handles GET /api/events - the most recent journal entries,
// newest first.
func (h *SessionHandler) RecentEvents(c *gin.Context) {
	if h.audit == nil {
		sendError(c, http.StatusServiceUnavailable, "AUDIT_DISABLED", "Audit journal is disabled")
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	events, err := h.audit.ListRecent(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list events: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toAuditEventResponses(events))
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.GET("/:id/events", h.SessionEvents)
	}
	rg.GET("/events", h.RecentEvents)
}
