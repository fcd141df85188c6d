package notifications

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Pusher delivers a payload to every live connection of a user.
type Pusher interface {
	Push(userID uint, v interface{}) int
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks open websocket connections per user. A user may hold several
// (one per tab).
type Hub struct {
	mu       sync.RWMutex
	clients  map[uint]map[*client]struct{}
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewHub(baseLog *logger.Logger) *Hub {
	return &Hub{
		clients: map[uint]map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// any origin; AuthMiddleware has already checked the token
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: baseLog.With("component", "ws-hub"),
	}
}

func (h *Hub) add(userID uint, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[userID]
	if !ok {
		set = map[*client]struct{}{}
		h.clients[userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(userID uint, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// Connections reports how many sockets a user has open.
func (h *Hub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Push returns the number of connections the payload was queued on. Slow
// connections with a full buffer are skipped.
func (h *Hub) Push(userID uint, v interface{}) int {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal push", "user_id", userID, "error", err)
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients[userID] {
		select {
		case c.send <- msg:
			n++
		default:
			h.log.Warn("dropping push to slow client", "user_id", userID)
		}
	}
	return n
}

// ServeWS upgrades an authenticated request and streams the user's new
// notifications until the socket closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "user_id", user.ID, "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(user.ID, c)
	h.log.Debug("websocket connected", "user_id", user.ID)

	go h.writePump(c)
	h.readPump(user.ID, c)
}

// readPump only services control frames; clients never send data.
func (h *Hub) readPump(userID uint, c *client) {
	defer func() {
		h.remove(userID, c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read", "user_id", userID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Close disconnects everyone. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, userID)
	}
}
