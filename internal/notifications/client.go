package notifications

import (
	"context"
	"sync/atomic"
	"time"

	"creditflow/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Dashboards only send control frames.
	maxMessageSize = 1024

	sendBuffer = 64
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub

	// Conn is nil for clients registered in tests.
	Conn *websocket.Conn

	// Send is the buffered channel of outbound messages.
	Send chan []byte

	// Actor is the authenticated name behind the connection.
	Actor string

	drops    atomic.Int64
	dropping atomic.Bool
	// closing is set when the hub shuts down rather than the peer leaving.
	closing atomic.Bool
}

func newClient(hub *Hub, conn *websocket.Conn, actor string) *Client {
	return &Client{
		hub:   hub,
		Conn:  conn,
		Actor: actor,
		Send:  make(chan []byte, sendBuffer),
	}
}

// ReadPump drains inbound frames so pongs are processed, and unregisters on close.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.LogError(context.Background(), c.Actor, err, "read")
			}
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				frame := []byte{}
				if c.closing.Load() {
					frame = websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
				}
				_ = c.Conn.WriteMessage(websocket.CloseMessage, frame)
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dropNotice tells a dashboard it missed events and should re-fetch.
var dropNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

// TrySend queues message without blocking. The last buffer slot is kept for a drop
// notice, which is queued once per burst of dropped messages.
func (c *Client) TrySend(message []byte) {
	defer func() {
		// Send was closed by UnregisterClient between the hub's lookup and this call.
		if r := recover(); r != nil {
			c.drops.Add(1)
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name()).Inc()
		}
	}()

	if len(c.Send) < cap(c.Send)-1 {
		select {
		case c.Send <- message:
			c.dropping.Store(false)
			return
		default:
		}
	}

	c.drops.Add(1)
	observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name()).Inc()
	if c.dropping.CompareAndSwap(false, true) {
		select {
		case c.Send <- dropNotice:
		default:
		}
	}
}

// Dropped returns how many messages this client has lost to backpressure.
func (c *Client) Dropped() int64 {
	return c.drops.Load()
}
