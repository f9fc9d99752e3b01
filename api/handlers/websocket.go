package handlers

import (
	"github.com/deskpro/signaling-server/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WebSocketHandler hands signaling connections off to the ws package.
type WebSocketHandler struct {
	wsHandler *ws.Handler
	log       zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		wsHandler: wsHandler,
		log:       logger,
	}
}

// Connect handles GET /ws - upgrades to a signaling connection.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader has already written the HTTP error.
		h.log.Debug().Err(err).Str("client_ip", c.ClientIP()).Msg("websocket upgrade failed")
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Connect)
}
