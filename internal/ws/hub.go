package ws

import (
	"errors"
	"sync"

	"github.com/deskpro/signaling-server/internal/metrics"
	"github.com/deskpro/signaling-server/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// sendQueueSize is the number of frames buffered per connection.
const sendQueueSize = 256

var (
	// ErrClientClosed is returned when sending to a closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrSendQueueFull is returned when a client's send queue overflows.
	// The client is closed.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrClientNotFound is returned when no client has the given ID.
	ErrClientNotFound = errors.New("client not found")
)

// Client represents a WebSocket client connection.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// ID returns the connection ID.
func (c *Client) ID() string {
	return c.id
}

// Send queues a frame to be written to the client.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, close the client
		c.closeLocked()
		return ErrSendQueueFull
	}
}

// Close closes the send queue. Frames already queued are still written.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// HubConfig holds configuration for the hub.
type HubConfig struct {
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// Hub tracks every live connection by ID and delivers outbound frames.
type Hub struct {
	clients map[string]*Client
	closed  bool
	mu      sync.RWMutex

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a new Hub.
func NewHub(config HubConfig) *Hub {
	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	return &Hub{
		clients: make(map[string]*Client),
		log:     log,
		metrics: config.Metrics,
	}
}

// Register adds a client to the hub. It returns false once the hub is
// closed; the client is closed in that case.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.Close()
		return false
	}
	h.clients[client.ID()] = client
	h.mu.Unlock()
	return true
}

// Unregister removes a client from the hub and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.ID()]; ok && current == client {
		delete(h.clients, client.ID())
	}
	h.mu.Unlock()

	client.Close()
}

// Get returns the client with the given ID.
func (h *Hub) Get(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	return client, ok
}

// Send queues a frame for the client with the given ID.
func (h *Hub) Send(id string, data []byte) error {
	client, ok := h.Get(id)
	if !ok {
		return ErrClientNotFound
	}
	return client.Send(data)
}

// Deliver encodes and sends each outbound message. Delivery is best effort:
// messages for unknown or closed connections are dropped.
func (h *Hub) Deliver(out []signaling.Outbound) {
	for _, msg := range out {
		data, err := msg.Encode()
		if err != nil {
			h.log.Error().Err(err).Str("event", msg.Event).Msg("failed to encode outbound message")
			continue
		}

		err = h.Send(msg.To, data)
		switch {
		case errors.Is(err, ErrSendQueueFull):
			h.metrics.Inc(metrics.SendQueueOverflow)
			h.log.Warn().Str("conn_id", msg.To).Str("event", msg.Event).Msg("send queue full, closing connection")
		case err != nil:
			h.log.Debug().Err(err).Str("conn_id", msg.To).Str("event", msg.Event).Msg("dropping outbound message")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every client and refuses new registrations. Write pumps
// flush whatever is still queued and then close their connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
