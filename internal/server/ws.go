package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"prostocks-dashboard/internal/broker/prostocks"
	"prostocks-dashboard/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced on the main handler; the upgrade itself is open.
		return true
	},
}

// Client is one connected dashboard browser.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans quote updates out to every connected dashboard.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run is the hub's main loop; it exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow consumer; drop the update rather than block.
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				_ = client.conn.Close()
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:   uuid.NewString()[:8],
		conn: conn,
		send: make(chan []byte, 64),
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump(s.hub)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// notice disconnects.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

type quoteUpdate struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	Volume int64   `json:"volume"`
	Ts     int64   `json:"ts"`
}

// pollQuotes refreshes the universe's quotes over the REST API and pushes
// them to connected dashboards. Skips polling while logged out or while
// nobody is listening.
func (s *Server) pollQuotes(ctx context.Context) {
	tick := time.NewTicker(time.Duration(s.cfg.PollSeconds) * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if _, ok := s.sess.Token(); !ok {
				continue
			}
			s.hub.mu.RLock()
			listeners := len(s.hub.clients)
			s.hub.mu.RUnlock()
			if listeners == 0 {
				continue
			}

			for _, symbol := range s.cfg.Universe {
				q, err := s.md.Quote(ctx, s.cfg.Exchange, prostocks.Tradingsymbol(symbol))
				if err != nil {
					logger.Debug(ctx, "Quote poll failed", "symbol", symbol, "error", err)
					continue
				}
				b, _ := json.Marshal(quoteUpdate{
					Type: "quote", Symbol: symbol, LTP: q.LTP, Volume: q.Volume, Ts: q.Ts,
				})
				s.hub.Broadcast(b)
			}

		case <-ctx.Done():
			return
		}
	}
}
