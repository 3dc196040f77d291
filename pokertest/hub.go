package pokertest

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Test server: accept everything.
		return true
	},
}

// controlFrame mirrors the client's subscribe/unsubscribe command.
type controlFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// pushFrame mirrors the client's inbound frame shape.
type pushFrame struct {
	Topic string          `json:"topic"`
	Body  json.RawMessage `json:"body"`
}

// Client represents one connected test websocket peer and the topics it has
// subscribed to.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool
}

// Hub fans published payloads out to every client subscribed to a topic. It
// is the push half of the fake estimation service.
type Hub struct {
	clients map[*Client]bool

	publish    chan *publication
	register   chan *Client
	unregister chan *Client
	subscribe  chan *subscription
	kick       chan struct{}
	quit       chan struct{}
}

type publication struct {
	topic string
	body  []byte
}

type subscription struct {
	client *Client
	topic  string
	add    bool
}

// NewHub creates a hub; call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		publish:    make(chan *publication, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan *subscription),
		kick:       make(chan struct{}),
		quit:       make(chan struct{}),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; ok {
				if sub.add {
					sub.client.topics[sub.topic] = true
				} else {
					delete(sub.client.topics, sub.topic)
				}
			}

		case pub := <-h.publish:
			frame, err := json.Marshal(pushFrame{Topic: pub.topic, Body: pub.body})
			if err != nil {
				log.Printf("pokertest: failed to marshal frame: %v", err)
				continue
			}
			for client := range h.clients {
				if !client.topics[pub.topic] {
					continue
				}
				select {
				case client.send <- frame:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}

		case <-h.kick:
			// Close the underlying connections without unregistering;
			// each read pump exits and unregisters its client. Used by
			// reconnection tests to simulate a network drop.
			for client := range h.clients {
				client.conn.Close()
			}

		case <-h.quit:
			for client := range h.clients {
				close(client.send)
			}
			return
		}
	}
}

// KickAll severs every live websocket, simulating a transport failure.
func (h *Hub) KickAll() {
	select {
	case h.kick <- struct{}{}:
	case <-h.quit:
	}
}

// Stop terminates the hub loop and closes all client send channels.
func (h *Hub) Stop() {
	close(h.quit)
}

// Publish queues a payload for every subscriber of a topic.
func (h *Hub) Publish(topic string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("pokertest: failed to marshal payload: %v", err)
		return
	}
	select {
	case h.publish <- &publication{topic: topic, body: body}:
	case <-h.quit:
	}
}

// ServeWS upgrades one websocket request and runs its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("pokertest: upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		topics: make(map[string]bool),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump consumes subscribe/unsubscribe commands from the peer.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame controlFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Action {
		case "subscribe":
			c.hub.subscribe <- &subscription{client: c, topic: frame.Topic, add: true}
		case "unsubscribe":
			c.hub.subscribe <- &subscription{client: c, topic: frame.Topic, add: false}
		}
	}
}

// writePump forwards queued frames and keeps the connection pinged.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
