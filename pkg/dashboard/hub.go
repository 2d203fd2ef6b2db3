package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/gorilla/websocket"
)

const (
	// clientBuffer is the number of frames queued per client before it is dropped.
	clientBuffer = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Frame is the message sent to socket clients.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to the connected dashboard sockets. It implements events.Emitter.
type Hub struct {
	l        *slog.Logger
	upgrader websocket.Upgrader

	mut     sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(l *slog.Logger) *Hub {
	return &Hub{
		l: l.With(slog.String(logging.KeyComponent, "websocket")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Emit queues the event for every client. Clients that are too slow are disconnected.
func (h *Hub) Emit(event string, data any) {
	b, err := json.Marshal(&Frame{Event: event, Data: data})
	if err != nil {
		h.l.Error("Error encoding event",
			slog.String("event", event),
			slog.String(logging.KeyError, err.Error()),
		)
		return
	}

	h.mut.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mut.RUnlock()

	for _, c := range slow {
		h.remove(c)
	}
	socketEvents.WithLabelValues(event).Inc()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mut.RLock()
	defer h.mut.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and pumps frames until the client goes away. Authentication
// happens before Serve is called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		h.l.Debug("Error upgrading connection", slog.String(logging.KeyError, err.Error()))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mut.Lock()
	h.clients[c] = struct{}{}
	h.mut.Unlock()
	socketClients.Inc()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mut.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mut.Unlock()

	if ok {
		socketClients.Dec()
	}
}

// readPump discards client messages; it exists to process control frames and notice closes.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Close disconnects every client.
func (h *Hub) Close() {
	h.mut.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mut.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}
