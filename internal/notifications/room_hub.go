package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"

	"momoland/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// RoomHub routes events to WebSocket connections subscribed to chat rooms.
// A connection is subscribed to at most one room at a time; joining a new
// room implicitly leaves the previous one.
type RoomHub struct {
	mu sync.RWMutex

	// Map: roomID -> set of subscribed clients
	rooms map[uint]map[*Client]bool

	// Map: client -> the room it is currently subscribed to
	clientRoom map[*Client]uint

	// Map: userID -> set of active Clients (multi-device support)
	userConns map[uint]map[*Client]bool
}

// Name returns a human-readable identifier for this hub.
func (h *RoomHub) Name() string { return "room hub" }

// RoomEvent is the wire shape of every event broadcast to a room topic.
type RoomEvent struct {
	Type     string      `json:"type"` // "new-message", "user-joined", "user-left", "presence", "message-deleted"
	RoomID   uint        `json:"room_id"`
	UserID   uint        `json:"user_id,omitempty"`
	Username string      `json:"username,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
}

// NewRoomHub creates a new RoomHub instance
func NewRoomHub() *RoomHub {
	return &RoomHub{
		rooms:      make(map[uint]map[*Client]bool),
		clientRoom: make(map[*Client]uint),
		userConns:  make(map[uint]map[*Client]bool),
	}
}

// Register registers a user's websocket connection. Returns Client or error if limits exceeded.
func (h *RoomHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Client]bool)
	}

	// Enforce per-user limit
	if len(h.userConns[userID]) >= maxConnsPerUser {
		return nil, fmt.Errorf("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	h.userConns[userID][client] = true

	log.Printf("RoomHub: Registered user %d (Active clients: %d)", userID, len(h.userConns[userID]))
	return client, nil
}

// UnregisterClient removes a connection and its room subscription.
func (h *RoomHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.userConns, client.UserID)
	}

	h.leaveLocked(client)

	log.Printf("RoomHub: Unregistered client for user %d", client.UserID)
}

// JoinRoom subscribes a connection to a room topic, leaving any previous room.
func (h *RoomHub) JoinRoom(client *Client, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(client)

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	h.clientRoom[client] = roomID

	observability.WebSocketRoomConnections.
		WithLabelValues(strconv.FormatUint(uint64(roomID), 10)).
		Set(float64(len(h.rooms[roomID])))

	log.Printf("RoomHub: User %d joined room %d", client.UserID, roomID)
}

// LeaveRoom unsubscribes a connection from its current room.
func (h *RoomHub) LeaveRoom(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client)
}

// ActiveRoom returns the room the connection is currently subscribed to.
func (h *RoomHub) ActiveRoom(client *Client) (uint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	roomID, ok := h.clientRoom[client]
	return roomID, ok
}

func (h *RoomHub) leaveLocked(client *Client) {
	roomID, ok := h.clientRoom[client]
	if !ok {
		return
	}
	delete(h.clientRoom, client)
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
		observability.WebSocketRoomConnections.
			WithLabelValues(strconv.FormatUint(uint64(roomID), 10)).
			Set(float64(len(clients)))
	}
}

// BroadcastToRoom sends an event to every connection subscribed to a room.
// Delivery is fire-and-forget; slow consumers drop messages (see TrySend).
func (h *RoomHub) BroadcastToRoom(roomID uint, event RoomEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}

	event.RoomID = roomID
	messageJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("RoomHub: Failed to marshal event: %v", err)
		return
	}

	for client := range clients {
		client.TrySend(messageJSON)
	}

	observability.MessageThroughput.
		WithLabelValues(strconv.FormatUint(uint64(roomID), 10), event.Type).
		Inc()
}

// ConnectionsInRoom returns the number of connections subscribed to a room.
func (h *RoomHub) ConnectionsInRoom(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// StartWiring connects the RoomHub to the Redis room topic subscriber.
func (h *RoomHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartRoomSubscriber(ctx, func(channel, payload string) {
		var roomID uint
		if _, err := fmt.Sscanf(channel, "room:%d", &roomID); err != nil {
			log.Printf("RoomHub: Invalid channel format: %s", channel)
			return
		}

		var event RoomEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("RoomHub: Failed to parse event from channel %s: %v", channel, err)
			return
		}

		h.BroadcastToRoom(roomID, event)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *RoomHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"server_shutdown","message":"Server is shutting down"}`)); err != nil {
				log.Printf("failed to write shutdown message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}

	h.rooms = make(map[uint]map[*Client]bool)
	h.clientRoom = make(map[*Client]uint)
	h.userConns = make(map[uint]map[*Client]bool)

	return nil
}
