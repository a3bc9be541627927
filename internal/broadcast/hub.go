// Package broadcast pushes entity change notifications to websocket
// subscribers. Publishing is fire-and-forget: a slow or dead client drops
// messages and can never fail the mutation that produced the event.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Event describes one entity change
type Event struct {
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id"`
	Change   string    `json:"change"`
	At       time.Time `json:"at"`
}

type envelope struct {
	Topic string `json:"topic"`
	Event Event  `json:"event"`
}

// Topic constructors. Consumers subscribe by operator (workspace changes),
// session (tab changes) or station destination (tickets).
func OperatorTopic(operatorID string) string { return "operator:" + operatorID }
func SessionTopic(sessionID uint) string     { return fmt.Sprintf("session:%d", sessionID) }
func StationTopic(destination string) string { return "station:" + destination }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client maintains one websocket subscriber
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool
}

// Hub fans events out to subscribed clients
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Publish delivers ev to every client subscribed to topic. Sends are
// non-blocking; a full client buffer drops the message.
func (h *Hub) Publish(topic string, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := json.Marshal(envelope{Topic: topic, Event: ev})
	if err != nil {
		log.Printf("broadcast: marshal failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.topics[topic] {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Printf("broadcast: dropping event for slow client on %s", topic)
		}
	}
}

// HandleWS upgrades the request and registers the client. Subscriptions come
// from query parameters: ?operator=, ?session=, ?station= (repeatable).
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("broadcast: failed to upgrade connection: %v", err)
		return
	}

	topics := make(map[string]bool)
	for _, op := range c.QueryArray("operator") {
		topics[OperatorTopic(op)] = true
	}
	for _, sess := range c.QueryArray("session") {
		topics["session:"+sess] = true
	}
	for _, st := range c.QueryArray("station") {
		topics[StationTopic(st)] = true
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		topics: topics,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go client.writePump()
	go client.readPump(h)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump drains the connection so pings/close frames are processed.
// Subscribers never send application messages.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("broadcast: websocket error: %v", err)
			}
			break
		}
	}
}

// writePump pushes queued events to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
