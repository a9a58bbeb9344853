package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/propmanage/propsync/internal/model"
)

const (
	eventBuffer       = 64
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
)

type eventClient struct {
	userID string
	send   chan model.ChangeEvent
}

// Hub fans change events out to connected websocket clients. A client whose
// buffer is full is disconnected; it refetches on reconnect.
type Hub struct {
	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: map[*eventClient]struct{}{},
		logger:  logger,
	}
}

// Publish delivers event to every client, or only to userID's clients when
// userID is not empty.
func (h *Hub) Publish(event model.ChangeEvent, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if userID != "" && c.userID != userID {
			continue
		}
		select {
		case c.send <- event:
		default:
			h.logger.Warn("dropping slow event client", zap.String("user", c.userID))
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) register(c *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	c := &eventClient{userID: userID, send: make(chan model.ChangeEvent, eventBuffer)}
	if !h.register(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(c)
	h.logger.Debug("event client connected", zap.String("user", userID))

	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event stream closed")
				return
			}
			if err := writeEvent(ctx, conn, event); err != nil {
				h.logger.Debug("event write failed", zap.String("user", userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event model.ChangeEvent) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}
