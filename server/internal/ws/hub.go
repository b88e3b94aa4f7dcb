package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/observability"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	// EventCounters is the event name of every broadcast message.
	EventCounters = "counters"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Source supplies the counters to broadcast.
type Source interface {
	AllCounters() []types.WorkflowCounters
}

// Message is the JSON envelope sent to clients on every broadcast tick.
type Message struct {
	Event       string                   `json:"event"`
	GeneratedAt time.Time                `json:"generated_at"`
	Data        []types.WorkflowCounters `json:"data"`
}

// Hub manages WebSocket client connections and broadcasts counters to all
// connected clients every interval.
type Hub struct {
	source   Source
	interval time.Duration
	metrics  *observability.Metrics
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client. A nil filter means every
// workflow.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	filter map[string]bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics tracks the connected client count.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New creates a Hub that reads from src and broadcasts every interval.
func New(src Source, interval time.Duration, opts ...Option) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h := &Hub{
		source:   src,
		interval: interval,
		now:      time.Now,
		clients:  make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run sends counters to all connected clients every interval. It blocks until
// ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the connection, sends the current counters immediately,
// then serves broadcasts until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	if ids := r.URL.Query()["workflow"]; len(ids) > 0 {
		c.filter = make(map[string]bool, len(ids))
		for _, id := range ids {
			c.filter[id] = true
		}
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := h.buildMessage(h.source.AllCounters(), c.filter); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	c.readPump()
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.StreamClientDelta(1)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		h.metrics.StreamClientDelta(-1)
	}
}

func (h *Hub) broadcast() {
	counters := h.source.AllCounters()

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	// Unfiltered clients share one encoded payload.
	var shared []byte
	for _, c := range targets {
		var data []byte
		var err error
		if c.filter == nil {
			if shared == nil {
				shared, err = h.buildMessage(counters, nil)
			}
			data = shared
		} else {
			data, err = h.buildMessage(counters, c.filter)
		}
		if err != nil {
			slog.Warn("ws: encode counters", "err", err)
			return
		}

		select {
		case c.send <- data:
		default:
			slog.Warn("ws: client send buffer full, disconnecting", "remote", c.conn.RemoteAddr().String())
			h.unregister(c)
		}
	}
}

func (h *Hub) buildMessage(counters []types.WorkflowCounters, filter map[string]bool) ([]byte, error) {
	data := counters
	if filter != nil {
		data = make([]types.WorkflowCounters, 0, len(filter))
		for _, c := range counters {
			if filter[c.WorkflowID] {
				data = append(data, c)
			}
		}
	}
	if data == nil {
		data = []types.WorkflowCounters{}
	}
	return json.Marshal(Message{
		Event:       EventCounters,
		GeneratedAt: h.now().UTC(),
		Data:        data,
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	h.metrics.StreamClientDelta(-float64(n))
}

// writePump forwards queued messages to the connection and sends periodic
// pings. One goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and detects disconnects. Blocks until the
// connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
