package notifications

import (
	"context"
	"errors"
	"sync"

	"creditflow/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerActor = 8
	maxTotalConns    = 2000
)

var (
	// ErrHubFull is returned when the server-wide connection cap is reached.
	ErrHubFull = errors.New("server connection limit reached")
	// ErrActorLimit is returned when one actor holds too many connections.
	ErrActorLimit = errors.New("actor connection limit reached")
	// ErrHubClosed is returned after Shutdown.
	ErrHubClosed = errors.New("hub is shut down")
)

// Hub tracks the websocket connections of every dashboard watching credit events.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
	log        *observability.WSLogger
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*Client]struct{}),
		log:   observability.NewWSLogger("credit events"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "credit_events" }

// Register adds a connection for actor.
func (h *Hub) Register(actor string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.totalConns >= maxTotalConns {
		return nil, ErrHubFull
	}
	m, ok := h.conns[actor]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[actor] = m
	}
	if len(m) >= maxConnsPerActor {
		return nil, ErrActorLimit
	}

	client := newClient(h, conn, actor)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	h.log.LogConnect(context.Background(), actor, h.totalConns)
	return client, nil
}

// UnregisterClient removes client and closes its send channel. Repeated calls are no-ops.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.Actor]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.Actor)
	}
	h.totalConns--
	close(client.Send)
	observability.WebSocketConnectionsTotal.Dec()
	h.log.LogDisconnect(context.Background(), client.Actor, "unregistered")
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// StartWiring forwards every event seen on Redis to this hub's clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartCreditSubscriber(ctx, h.BroadcastAll)
}

// Shutdown asks every connection to close and refuses new ones.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for actor, clients := range h.conns {
		for client := range clients {
			// WritePump is the connection's only writer; it sends the close frame.
			client.closing.Store(true)
			close(client.Send)
			observability.WebSocketConnectionsTotal.Dec()
		}
		delete(h.conns, actor)
	}
	h.totalConns = 0
	return nil
}
