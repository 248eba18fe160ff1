package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// FeedHub routes post feed events to WebSocket connections. A connection
// may subscribe to any number of topics: the global "posts" topic and
// per-post "post:<id>" topics.
type FeedHub struct {
	mu sync.RWMutex

	// Map: topic -> set of subscribed clients
	topics map[string]map[*Client]bool

	// Map: client -> set of subscribed topics
	clientTopics map[*Client]map[string]bool

	// Map: userID -> set of active Clients
	userConns map[uint]map[*Client]bool
}

// Name returns a human-readable identifier for this hub.
func (h *FeedHub) Name() string { return "feed hub" }

// FeedEvent is the wire shape of events broadcast on feed topics.
type FeedEvent struct {
	Type    string      `json:"type"` // "new-post", "post-updated", "post-deleted", "new-comment"
	PostID  uint        `json:"post_id,omitempty"`
	UserID  uint        `json:"user_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewFeedHub creates a new FeedHub instance
func NewFeedHub() *FeedHub {
	return &FeedHub{
		topics:       make(map[string]map[*Client]bool),
		clientTopics: make(map[*Client]map[string]bool),
		userConns:    make(map[uint]map[*Client]bool),
	}
}

// Register registers a user's websocket connection. Returns Client or error if limits exceeded.
func (h *FeedHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Client]bool)
	}

	if len(h.userConns[userID]) >= maxConnsPerUser {
		return nil, fmt.Errorf("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	h.userConns[userID][client] = true
	return client, nil
}

// UnregisterClient removes a connection and all of its topic subscriptions.
func (h *FeedHub) UnregisterClient(client *Client) {
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

	for topic := range h.clientTopics[client] {
		h.unsubscribeLocked(client, topic)
	}
	delete(h.clientTopics, client)
}

// Subscribe adds a connection to a topic.
func (h *FeedHub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true

	if h.clientTopics[client] == nil {
		h.clientTopics[client] = make(map[string]bool)
	}
	h.clientTopics[client][topic] = true
}

// Unsubscribe removes a connection from a topic.
func (h *FeedHub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(client, topic)
	if topics, ok := h.clientTopics[client]; ok {
		delete(topics, topic)
	}
}

func (h *FeedHub) unsubscribeLocked(client *Client, topic string) {
	if clients, ok := h.topics[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Broadcast sends an event to every connection subscribed to a topic.
func (h *FeedHub) Broadcast(topic string, event FeedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.topics[topic]
	if !ok {
		return
	}

	messageJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("FeedHub: Failed to marshal event: %v", err)
		return
	}

	for client := range clients {
		client.TrySend(messageJSON)
	}
}

// SubscriberCount returns the number of connections subscribed to a topic.
func (h *FeedHub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// StartWiring connects the FeedHub to the Redis feed topic subscribers.
func (h *FeedHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartFeedSubscriber(ctx, func(channel, payload string) {
		var event FeedEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("FeedHub: Failed to parse event from channel %s: %v", channel, err)
			return
		}
		h.Broadcast(channel, event)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *FeedHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}

	h.topics = make(map[string]map[*Client]bool)
	h.clientTopics = make(map[*Client]map[string]bool)
	h.userConns = make(map[uint]map[*Client]bool)

	return nil
}
