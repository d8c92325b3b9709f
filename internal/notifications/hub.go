package notifications

import (
	"context"
	"errors"
	"sync"

	"blango/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerPost = 500
	maxTotalConns   = 10000
)

var (
	ErrHubFull  = errors.New("server connection limit reached")
	ErrPostFull = errors.New("post connection limit reached")
	ErrHubDown  = errors.New("comment feed is shutting down")
)

// Hub maps postID to the clients watching that post's comments.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[uint]map[*Client]struct{}
	totalConns int
	closed     bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[uint]map[*Client]struct{})}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "comment hub" }

// Register adds a connection to postID's room.
func (h *Hub) Register(postID, userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubDown
	}
	if h.totalConns >= maxTotalConns {
		return nil, ErrHubFull
	}
	room, ok := h.rooms[postID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[postID] = room
	}
	if len(room) >= maxConnsPerPost {
		return nil, ErrPostFull
	}

	client := NewClient(h, conn, postID, userID)
	room[client] = struct{}{}
	h.totalConns++
	observability.CommentFeedConnections.Inc()
	return client, nil
}

// UnregisterClient removes client and closes its send queue. Safe to call twice.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.PostID]
	if !ok {
		return
	}
	if _, exists := room[client]; !exists {
		return
	}
	delete(room, client)
	close(client.Send)
	h.totalConns--
	observability.CommentFeedConnections.Dec()
	if len(room) == 0 {
		delete(h.rooms, client.PostID)
	}
}

// Broadcast sends message to every client watching postID.
func (h *Hub) Broadcast(postID uint, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[postID] {
		c.TrySend(message)
	}
}

// Watchers returns the number of local connections on postID.
func (h *Hub) Watchers(postID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[postID])
}

// StartWiring relays Redis comment events to local rooms.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPostSubscriber(ctx, func(postID uint, payload string) {
		h.Broadcast(postID, []byte(payload))
	})
}

// Shutdown closes every send queue, which makes each WritePump send a close
// frame, and refuses new registrations.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for _, room := range h.rooms {
		for client := range room {
			close(client.Send)
			observability.CommentFeedConnections.Dec()
		}
	}
	h.rooms = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
