// Package pubsub fans the live tally out to websocket clients. The hub is a
// convenience feed for operators; the remote endpoint stays the dashboard's
// source of truth.
package pubsub

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:

				default:
					// Slow client: drop it rather than hold up the feed.
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Broadcast queues a tally snapshot for every connected client. It never
// blocks the caller; if the hub is saturated the update is dropped, the
// next one will carry fresher state anyway.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
	}
}

// ServeWS upgrades an HTTP request and subscribes it to the tally feed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 8)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump sends queued tally updates to the websocket connection.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for m := range c.send {
		if err := c.conn.Write(context.Background(), websocket.MessageText, m); err != nil {
			c.hub.logger.Warn("error writing to websocket client", "error", err)
			break
		}
	}
}

// readPump exists only to notice the client going away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			break
		}
	}
}
