package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	sendBuffer   = 16
)

// Frame is what a websocket client receives for every message on one of its rooms.
type Frame struct {
	Channel string          `json:"channel"`
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps websocket connections grouped by room, a room being an owner or user channel. It
// implements Publisher so it can sit directly behind a Dispatcher or behind a Relay.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

// NewHub returns a hub accepting upgrades from the given origins. An empty list accepts all.
func NewHub(logger *slog.Logger, allowedOrigins ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger: logger,
		rooms:  make(map[string]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
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

// Publish sends msg to every connection in the msg.Channel room. Slow clients whose buffer is
// full are disconnected.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	b, err := json.Marshal(Frame(msg))
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[msg.Channel] {
		select {
		case c.send <- b:
		default:
			h.dropLocked(c)
		}
	}
	return nil
}

// Subscribers reports how many connections are in room.
func (h *Hub) Subscribers(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Serve upgrades the request and keeps the connection in rooms until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, rooms []string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	for _, room := range rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*client]struct{})
		}
		h.rooms[room][c] = struct{}{}
	}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
	return nil
}

// dropLocked removes c from every room and stops its writer. h.mu must be held.
func (h *Hub) dropLocked(c *client) {
	found := false
	for room, members := range h.rooms {
		if _, ok := members[c]; !ok {
			continue
		}
		found = true
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if found {
		close(c.send)
	}
}

// readLoop discards client input; it only exists to notice disconnects and answer pings.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
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
