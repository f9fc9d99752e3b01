package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const statusRunning = "DeskPro Signaling Server Running"

// Stats reports live server counts.
type Stats interface {
	SessionCount() int
	ConnectionCount() int
}

// StatusHandler serves the status and health endpoints.
type StatusHandler struct {
	version string
	stats   Stats
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(version string, stats Stats) *StatusHandler {
	return &StatusHandler{
		version: version,
		stats:   stats,
	}
}

// StatusResponse is the body of GET /.
type StatusResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	ActiveSessions    int    `json:"activeSessions"`
	ActiveConnections int    `json:"activeConnections"`
}

// Status handles GET / - reports the number of live sessions and connections.
func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:            statusRunning,
		Version:           h.version,
		ActiveSessions:    h.stats.SessionCount(),
		ActiveConnections: h.stats.ConnectionCount(),
	})
}

// Health handles GET /health.
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// RegisterRoutes registers the status routes.
func (h *StatusHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Status)
	r.GET("/health", h.Health)
}
