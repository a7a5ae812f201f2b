package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
)

// writeTimeout bounds a single client write.
const writeTimeout = 5 * time.Second

// Hub is a Sink that broadcasts events to connected websocket clients.
// It is also the http.Handler that accepts those clients.
//
// Delivery with no clients connected succeeds. A client whose write fails
// is disconnected; it does not fail the delivery.
type Hub struct {
	originPatterns []string

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. originPatterns is passed to websocket.Accept;
// nil allows same-origin requests only.
func NewHub(originPatterns ...string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		originPatterns: originPatterns,
		clients:        make(map[*websocket.Conn]struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Deliver writes the canonical encoding of ev to every client.
func (h *Hub) Deliver(ctx context.Context, ev Event) error {
	data, err := ev.Encode()
	if err != nil {
		// Re-encoding will not fix the payload.
		return backoff.Permanent(fmt.Errorf("encode event %s: %w", ev.ID, err))
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	// Write outside the lock so a slow client does not block accepts.
	for _, conn := range clients {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(wctx, websocket.MessageText, data)
		cancel()

		if err != nil {
			slog.Warn("websocket write failed", "event_id", ev.ID, "error", err)
			h.removeClient(conn)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and registers the client until it
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("websocket client connected", "clients", count)

	// Clients never send; reading keeps the connection alive and notices
	// disconnects. Blocking here keeps the request open.
	h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("websocket client disconnected", "clients", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	h.cancel()
	for conn := range clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
