package controllers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/core/console"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes console updates to every connected status client.
type Hub struct {
	unsubscribe func()

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub subscribes to c and starts fanning its updates out.
func NewHub(c *console.Console) *Hub {
	h := &Hub{clients: map[string]*client{}}
	h.unsubscribe = c.Subscribe(h.broadcast)
	return h
}

func (h *Hub) broadcast(u console.Update) {
	payload, err := json.Marshal(u)
	if err != nil {
		log.Warnln("unable to encode status update:", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// slow reader
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the status client. The tile
// snapshots are sent first so a fresh page can render the grid.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnln("websocket upgrade error:", err)
		return
	}

	c := &client{id: uuid.NewString(), hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	for _, snap := range _console.Snapshots() {
		snap := snap
		payload, err := json.Marshal(console.Update{Kind: console.UpdateTile, Snapshot: &snap})
		if err != nil {
			continue
		}
		select {
		case c.send <- payload:
		default:
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	log.WithField("client", c.id).Debugln("status client connected")

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	c.once.Do(func() { close(c.send) })
}

// Close disconnects every client and stops listening for updates.
func (h *Hub) Close() {
	h.unsubscribe()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}

// readPump only drains control frames; clients never send commands here.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithField("client", c.id).Debugln("websocket error:", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
