package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"momoland/internal/middleware"
	"momoland/internal/notifications"
	"momoland/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketRoomHandler handles WebSocket connections for real-time room chat
// and presence. The wire protocol is JSON envelopes with a "type" field:
// join-room, leave-room, and send-message from the client; RoomEvent frames
// from the server.
func (s *Server) WebSocketRoomHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		ctx := context.Background()

		// Get userID from context locals (set by AuthRequired middleware)
		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			log.Printf("WebSocket Rooms: Unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			log.Printf("WebSocket Rooms: Failed to get user %d: %v", userID, err)
			_ = conn.Close()
			return
		}
		username := user.Username

		if s.roomHub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.roomHub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket Rooms: Failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// The room this connection has joined. One room per connection;
		// joining another room implicitly leaves the current one.
		var currentRoom uint

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var incomingMsg map[string]interface{}
			if err := json.Unmarshal(message, &incomingMsg); err != nil {
				log.Printf("WebSocket Rooms: Invalid message format from user %d", userID)
				return
			}

			msgType, ok := incomingMsg["type"].(string)
			if !ok {
				return
			}

			switch msgType {
			case "join-room":
				roomIDFloat, ok := incomingMsg["room_id"].(float64)
				if !ok {
					return
				}
				roomID := uint(roomIDFloat)

				// Membership, capacity, and ban checks all happen in the
				// service; only a successful join subscribes the socket.
				if _, err := s.chatService.JoinRoom(ctx, roomID, userID); err != nil {
					s.sendWSError(c, err.Error())
					return
				}

				if currentRoom != 0 && currentRoom != roomID {
					s.chatService.HandleDisconnect(ctx, currentRoom, userID)
				}
				s.roomHub.JoinRoom(c, roomID)
				currentRoom = roomID
				observability.WebSocketEventsTotal.WithLabelValues("join-room").Inc()

				response := notifications.RoomEvent{
					Type:   "joined",
					RoomID: roomID,
					UserID: userID,
				}
				if responseJSON, err := json.Marshal(response); err == nil {
					c.TrySend(responseJSON)
				}

			case "leave-room":
				if currentRoom == 0 {
					return
				}
				roomID := currentRoom
				s.roomHub.LeaveRoom(c)
				currentRoom = 0
				observability.WebSocketEventsTotal.WithLabelValues("leave-room").Inc()
				// Socket-level leave only drops presence; membership stays.
				s.chatService.HandleDisconnect(ctx, roomID, userID)

			case "send-message":
				if currentRoom == 0 {
					s.sendWSError(c, "Join a room first")
					return
				}
				content, _ := incomingMsg["content"].(string)
				if content == "" {
					return
				}

				// Same rate limit as the HTTP endpoint (30 per minute)
				id := fmt.Sprintf("user:%d", userID)
				allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "send_room_message", id, 30, time.Minute)
				if !allowed {
					s.sendWSError(c, "Rate limit exceeded. Please wait a moment.")
					return
				}

				if _, err := s.chatService.SendMessage(ctx, currentRoom, userID, content); err != nil {
					s.sendWSError(c, err.Error())
				}
			}
		}

		// Send welcome message
		welcome := notifications.RoomEvent{
			Type:     "connected",
			UserID:   userID,
			Username: username,
		}
		if welcomeJSON, err := json.Marshal(welcome); err == nil {
			client.TrySend(welcomeJSON)
		}

		// Start write pump in a goroutine
		go client.WritePump()

		// Read pump runs in the main handler goroutine (blocking)
		client.ReadPump()

		// Connection dropped: presence goes offline for the joined room.
		// The hub has already unregistered the client by this point.
		if currentRoom != 0 {
			s.chatService.HandleDisconnect(ctx, currentRoom, userID)
		}
	})
}

// WebSocketFeedHandler handles WebSocket connections for post feed updates.
// Clients subscribe to the global "posts" topic or per-post "post:<id>"
// topics with subscribe/unsubscribe envelopes.
func (s *Server) WebSocketFeedHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			log.Printf("WebSocket Feed: Unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		if s.feedHub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.feedHub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket Feed: Failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var incomingMsg map[string]interface{}
			if err := json.Unmarshal(message, &incomingMsg); err != nil {
				return
			}
			msgType, ok := incomingMsg["type"].(string)
			if !ok {
				return
			}

			topic := feedTopicFromMessage(incomingMsg)
			if topic == "" {
				return
			}

			switch msgType {
			case "subscribe":
				s.feedHub.Subscribe(c, topic)
			case "unsubscribe":
				s.feedHub.Unsubscribe(c, topic)
			}
		}

		// Every feed connection implicitly follows the global posts topic.
		s.feedHub.Subscribe(client, "posts")

		go client.WritePump()
		client.ReadPump()
	})
}

// feedTopicFromMessage resolves a subscribe envelope to a topic name:
// {"topic":"posts"} or {"post_id":42} for "post:42".
func feedTopicFromMessage(msg map[string]interface{}) string {
	if topic, ok := msg["topic"].(string); ok && topic == "posts" {
		return topic
	}
	if postIDFloat, ok := msg["post_id"].(float64); ok && postIDFloat > 0 {
		return fmt.Sprintf("post:%d", uint(postIDFloat))
	}
	return ""
}

func (s *Server) sendWSError(c *notifications.Client, message string) {
	response := notifications.RoomEvent{
		Type:    "error",
		Payload: map[string]string{"message": message},
	}
	if responseJSON, err := json.Marshal(response); err == nil {
		c.TrySend(responseJSON)
	}
}
