package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/deskpro/signaling-server/internal/metrics"
	"github.com/deskpro/signaling-server/internal/signaling"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageBytes is the largest inbound frame accepted.
	DefaultMaxMessageBytes = 64 * 1024

	// DefaultMessagesPerSecond is the per-connection inbound rate.
	DefaultMessagesPerSecond = 50
)

// EventRouter turns inbound events into outbound messages.
type EventRouter interface {
	Connect(connID string) []signaling.Outbound
	Handle(connID, event string, data json.RawMessage) []signaling.Outbound
	Disconnect(connID string) []signaling.Outbound
}

// HandlerConfig holds configuration for the WebSocket handler.
type HandlerConfig struct {
	// AllowedOrigins lists the browser origins that may connect. Empty or
	// containing "*" allows any origin.
	AllowedOrigins    []string
	MaxMessageBytes   int64
	MessagesPerSecond int
	Logger            *zerolog.Logger
	Metrics           *metrics.Metrics

	// NewID generates connection IDs. Defaults to random UUIDs.
	NewID func() string
}

// Handler upgrades HTTP requests to WebSocket connections and pumps frames
// between the peers and the router.
type Handler struct {
	hub      *Hub
	router   EventRouter
	upgrader websocket.Upgrader
	config   HandlerConfig
	log      zerolog.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup

	// dispatchMu keeps router calls and their delivery in one critical
	// section, so each peer's queue matches the order of state changes.
	dispatchMu sync.Mutex
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, router EventRouter, config HandlerConfig) *Handler {
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if config.MessagesPerSecond <= 0 {
		config.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	return &Handler{
		hub:    hub,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		config:  config,
		log:     log,
		metrics: config.Metrics,
	}
}

// originChecker accepts requests without an Origin header (non-browser
// peers) and browser requests from an allowed origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleConnection upgrades the request and starts the connection's pumps.
// On upgrade failure the upgrader has already written an HTTP error.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(h.config.NewID(), conn)

	// Count the pumps before registering so Wait never misses a connection
	// accepted while the hub is closing.
	h.wg.Add(2)
	if !h.hub.Register(client) {
		h.wg.Add(-2)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return nil
	}

	h.metrics.Inc(metrics.ConnectionsOpened)
	h.log.Info().Str("conn_id", client.ID()).Str("remote_addr", r.RemoteAddr).Msg("client connected")

	h.dispatch(func() []signaling.Outbound { return h.router.Connect(client.ID()) })

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// Wait blocks until every pump has exited or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs one router call and queues its output before the next call
// starts. Deliver never blocks, so the lock is held briefly.
func (h *Handler) dispatch(route func() []signaling.Outbound) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.hub.Deliver(route())
}

// readPump pumps frames from the WebSocket connection to the router.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		h.dispatch(func() []signaling.Outbound { return h.router.Disconnect(client.ID()) })
		client.Conn().Close()

		h.metrics.Inc(metrics.ConnectionsClosed)
		h.log.Info().Str("conn_id", client.ID()).Msg("client disconnected")
		h.wg.Done()
	}()

	client.Conn().SetReadLimit(h.config.MaxMessageBytes)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(h.config.MessagesPerSecond), h.config.MessagesPerSecond)

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("conn_id", client.ID()).Msg("websocket error")
			}
			break
		}

		var env signaling.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			h.metrics.Inc(metrics.EventsInvalid)
			h.log.Debug().Err(err).Str("conn_id", client.ID()).Msg("failed to decode frame")
			continue
		}

		if !isControlEvent(env.Event) && !limiter.Allow() {
			h.metrics.Inc(metrics.EventsRateLimited)
			h.log.Debug().Str("conn_id", client.ID()).Str("event", env.Event).Msg("rate limit exceeded, dropping frame")
			continue
		}

		h.dispatch(func() []signaling.Outbound { return h.router.Handle(client.ID(), env.Event, env.Data) })
	}
}

// isControlEvent reports whether event changes session membership. These
// bypass the rate limit so a peer is never left stranded in a session.
func isControlEvent(event string) bool {
	switch event {
	case signaling.EventCreateSession, signaling.EventJoinSession, signaling.EventLeaveSession:
		return true
	}
	return false
}

// writePump pumps queued frames to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
		h.wg.Done()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One envelope per frame.
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
