// Lighttrails canvas server
//
// Every connected browser co-draws on one shared canvas: short-lived trail
// points and a live cursor position stream in from each client and fan out
// to all others, where they fade within seconds.
//
// Features:
// - One shared canvas per process, WebSocket at /ws
// - Server-assigned opaque identity per connection (never reused)
// - Per-identity settings record, sanitized and merged server-side
// - Late joiners receive a settings snapshot of every live peer
// - Best-effort fan-out: a slow or dead peer is evicted, never retried
// - Liveness via WebSocket ping/pong with a read deadline
// - Optional per-connection rate limit on drawing messages
// - In-browser QR button to share the canvas URL, backed by go-qrcode

package main

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/Rosalva003/lighttrails/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one live connection owned by the hub. Its settings record is
// only ever written by its own read pump; the mutex covers reads from
// snapshot building on other goroutines.
type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	joined  time.Time

	mu       sync.Mutex
	settings protocol.Settings
}

func (c *client) getSettings() protocol.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *client) setSettings(s protocol.Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// enqueue attempts a non-blocking delivery into the client's send buffer.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Hub is the session registry and broadcast fan-out for the one shared
// canvas.
type Hub struct {
	cfg *Config

	mu      sync.RWMutex
	clients map[*client]bool
}

func newHub(cfg *Config) *Hub {
	return &Hub{
		cfg:     cfg,
		clients: make(map[*client]bool),
	}
}

// register adds a fresh connection, sends it the welcome snapshot, and
// announces it to the rest of the canvas.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	peers := make([]protocol.PeerSettings, 0, count-1)
	for other := range h.clients {
		if other == c {
			continue
		}
		peers = append(peers, protocol.PeerSettings{
			ClientID: other.id,
			Settings: other.getSettings(),
		})
	}
	h.mu.Unlock()

	connectedClients.Set(float64(count))
	logf(h.cfg, "CANVAS: Client %s joined (%d connected)", c.id, count)

	welcome, err := protocol.Marshal(protocol.NewWelcome(c.id, count, c.getSettings(), peers))
	if err == nil && !c.enqueue(welcome) {
		h.drop(c)
		return
	}

	joined, err := protocol.Marshal(protocol.NewClientJoined(c.id, count, c.getSettings()))
	if err == nil {
		h.broadcast(joined, c)
	}
}

// unregister removes a connection and announces the departure. Safe to call
// more than once per client; only the first call has any effect.
func (h *Hub) unregister(c *client) {
	if !h.drop(c) {
		return
	}

	h.mu.RLock()
	count := len(h.clients)
	h.mu.RUnlock()

	connectedClients.Set(float64(count))
	logf(h.cfg, "CANVAS: Client %s left (%d connected)", c.id, count)

	left, err := protocol.Marshal(protocol.NewClientLeft(c.id, count))
	if err == nil {
		h.broadcast(left, nil)
	}
}

// drop removes the client from the registry and closes its send channel,
// reporting whether it was still present.
func (h *Hub) drop(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// broadcast delivers an already-serialized message to every registered
// client except exclude. Delivery is fire-and-forget: a full send buffer
// means the peer is too slow or gone, and it is evicted like a disconnect.
func (h *Hub) broadcast(data []byte, exclude *client) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var failed []*client
	for _, c := range targets {
		if c.enqueue(data) {
			messagesOut.Inc()
		} else {
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		if h.drop(c) {
			evictions.Inc()
			logf(h.cfg, "EVICT: Client %s dropped (send buffer full)", c.id)
			h.announceLeft(c)
		}
	}
}

// announceLeft broadcasts a clientLeft for an already-dropped client.
func (h *Hub) announceLeft(c *client) {
	h.mu.RLock()
	count := len(h.clients)
	h.mu.RUnlock()

	connectedClients.Set(float64(count))

	left, err := protocol.Marshal(protocol.NewClientLeft(c.id, count))
	if err == nil {
		h.broadcast(left, nil)
	}
}

// clientCount returns the current registry cardinality.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendTo serializes a message for one client only (acks, pongs, errors).
func (h *Hub) sendTo(c *client, msg any) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return
	}
	if c.enqueue(data) {
		messagesOut.Inc()
		return
	}
	if h.drop(c) {
		evictions.Inc()
		h.announceLeft(c)
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// handleMessage applies one decoded inbound message for c. Messages from
// the same connection are handled strictly in order; different connections
// proceed concurrently.
func (h *Hub) handleMessage(c *client, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		messagesIn.WithLabelValues("malformed").Inc()
		h.sendTo(c, protocol.NewErrorEvent("invalid message format"))
		return
	}

	// Unknown types carry an arbitrary client-supplied string; folding them
	// into one label keeps the metric's cardinality bounded.
	label := msg.MessageType()
	if _, ok := msg.(*protocol.Unknown); ok {
		label = "unknown"
	}
	messagesIn.WithLabelValues(label).Inc()

	switch m := msg.(type) {
	case *protocol.Ping:
		h.sendTo(c, protocol.NewPong(nowMillis()))

	case *protocol.UpdateSettings:
		sanitized := protocol.Sanitize(m.RawSettings, c.getSettings(), c.id)
		c.setSettings(sanitized)
		h.sendTo(c, protocol.NewSettingsAck(sanitized))
		if out, err := protocol.Marshal(protocol.NewUserSettings(c.id, sanitized)); err == nil {
			h.broadcast(out, c)
		}

	case *protocol.LightTrail:
		if c.limiter != nil && !c.limiter.Allow() {
			droppedMessages.Inc()
			return
		}
		sanitized := protocol.Sanitize(m.RawSettings, c.getSettings(), c.id)
		c.setSettings(sanitized)
		out, err := protocol.Marshal(protocol.NewTrailEvent(c.id, *m.Trail, sanitized, nowMillis()))
		if err == nil {
			h.broadcast(out, c)
		}

	case *protocol.MousePosition:
		if c.limiter != nil && !c.limiter.Allow() {
			droppedMessages.Inc()
			return
		}
		sanitized := protocol.Sanitize(m.RawSettings, c.getSettings(), c.id)
		c.setSettings(sanitized)
		out, err := protocol.Marshal(protocol.NewCursorEvent(c.id, m.X, m.Y, sanitized, nowMillis()))
		if err == nil {
			h.broadcast(out, c)
		}

	case *protocol.Clear:
		if out, err := protocol.Marshal(protocol.NewClearEvent(c.id)); err == nil {
			h.broadcast(out, c)
		}

	case *protocol.Unknown:
		logf(h.cfg, "CANVAS: Ignoring unknown message type %q from %s", m.TypeName, c.id)
	}
}

// readPump owns inbound traffic and connection liveness. A pong must
// arrive before the read deadline or the next read fails, which counts as
// a disconnect.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(h.cfg.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(h.cfg.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.cfg.pongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(c, data)
	}
}

// writePump owns outbound traffic and the periodic liveness probe.
func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(h.cfg.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveCanvasSocket upgrades the connection and hands it to the hub.
func serveCanvasSocket(cfg *Config, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "CANVAS: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		id := uuid.NewString()
		c := &client{
			id:       id,
			conn:     conn,
			send:     make(chan []byte, cfg.sendBuffer),
			joined:   time.Now(),
			settings: protocol.DefaultSettings(id),
		}
		if cfg.messageRate > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(cfg.messageRate), cfg.messageBurst)
		}

		hub.register(c)

		go c.writePump(hub)
		c.readPump(hub)
	}
}

// qrHandler generates a PNG QR code for the canvas URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /qr; strip the suffix to get the canvas URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")
	if path == "" {
		path = "/"
	}

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerCanvas sets up routes so that:
//   - $prefix/ws  → WebSocket for the shared canvas
//   - $prefix/qr  → PNG QR code for the canvas URL
func registerCanvas(cfg *Config, mux *httprouter.Router, hub *Hub) {
	mux.GET(cfg.prefix+"/ws", serveCanvasSocket(cfg, hub))
	mux.GET(cfg.prefix+"/qr", qrHandler)
}
