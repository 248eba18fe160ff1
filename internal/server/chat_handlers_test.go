package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"momoland/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func chatHandlerApp(t *testing.T) (*Server, *gorm.DB, *fiber.App) {
	t.Helper()
	s, db, app := domainTestServer(t)
	app.Post("/api/rooms", s.CreateRoom)
	app.Get("/api/rooms", s.GetRooms)
	app.Post("/api/rooms/:id/join", s.JoinRoom)
	app.Post("/api/rooms/:id/leave", s.LeaveRoom)
	app.Post("/api/rooms/:id/close", s.CloseRoom)
	app.Get("/api/rooms/:id/members/online", s.GetOnlineMembers)
	app.Get("/api/rooms/:id/messages", s.GetRoomMessages)
	app.Post("/api/rooms/:id/messages", s.SendRoomMessage)
	app.Delete("/api/rooms/:id/messages/:messageId", s.DeleteRoomMessage)
	app.Get("/api/rooms/:id/bans", s.GetRoomBans)
	app.Post("/api/rooms/:id/bans/:userId", s.BanRoomUser)
	app.Delete("/api/rooms/:id/bans/:userId", s.UnbanRoomUser)
	app.Get("/api/rooms/:id", s.GetRoom)
	return s, db, app
}

func TestChatHandlers_RoomLifecycle(t *testing.T) {
	_, db, app := chatHandlerApp(t)

	creator := &models.User{Username: "creator", Email: "creator@e.com", Password: "x"}
	guest := &models.User{Username: "guest", Email: "guest@e.com", Password: "x"}
	db.Create(creator)
	db.Create(guest)

	t.Run("Create", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodPost, "/api/rooms", "1", map[string]interface{}{
			"name":       "general",
			"atmosphere": "chill",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var room models.ChatRoom
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
		_ = resp.Body.Close()
		assert.Equal(t, models.RoomStatusActive, room.Status)
		assert.Equal(t, models.DefaultRoomMaxMembers, room.MaxMembers)
	})

	t.Run("Create without name", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodPost, "/api/rooms", "1", map[string]interface{}{})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Join and messages", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodPost, "/api/rooms/1/join", "2", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		resp = testRequest(t, app, http.MethodPost, "/api/rooms/1/messages", "2", map[string]string{
			"content": "first!",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var msg models.ChatMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
		_ = resp.Body.Close()
		assert.Equal(t, "first!", msg.Content)

		resp = testRequest(t, app, http.MethodGet, "/api/rooms/1/messages", "2", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var history struct {
			Messages []models.ChatMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
		_ = resp.Body.Close()
		// join system message plus the chat message
		assert.Len(t, history.Messages, 2)
	})

	t.Run("Outsiders cannot read messages", func(t *testing.T) {
		outsider := &models.User{Username: "outsider", Email: "outsider@e.com", Password: "x"}
		db.Create(outsider)
		resp := testRequest(t, app, http.MethodGet, "/api/rooms/1/messages", "3", nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Online members reflect joins", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodGet, "/api/rooms/1/members/online", "1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()
		assert.Equal(t, 1, body.Count)
	})

	t.Run("Room counts", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodGet, "/api/rooms/1", "1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var room struct {
			MemberCount int64 `json:"member_count"`
			OnlineCount int   `json:"online_count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
		_ = resp.Body.Close()
		assert.Equal(t, int64(2), room.MemberCount)
		assert.Equal(t, 1, room.OnlineCount)
	})

	t.Run("Leave", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodPost, "/api/rooms/1/leave", "2", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		// No longer a member
		resp = testRequest(t, app, http.MethodGet, "/api/rooms/1/messages", "2", nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Close", func(t *testing.T) {
		// Only the creator can close
		resp := testRequest(t, app, http.MethodPost, "/api/rooms/1/close", "2", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		_ = resp.Body.Close()

		resp = testRequest(t, app, http.MethodPost, "/api/rooms/1/close", "1", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		// Joining a closed room conflicts
		resp = testRequest(t, app, http.MethodPost, "/api/rooms/1/join", "2", nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestChatHandlers_Bans(t *testing.T) {
	_, db, app := chatHandlerApp(t)

	creator := &models.User{Username: "mod", Email: "mod@e.com", Password: "x"}
	target := &models.User{Username: "target", Email: "target@e.com", Password: "x"}
	db.Create(creator)
	db.Create(target)

	resp := testRequest(t, app, http.MethodPost, "/api/rooms", "1", map[string]string{"name": "strict"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()
	resp = testRequest(t, app, http.MethodPost, "/api/rooms/1/join", "2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	t.Run("Non-creator cannot ban", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodPost, "/api/rooms/1/bans/1", "2", nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Creator bans with duration", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodPost, "/api/rooms/1/bans/2", "1", map[string]interface{}{
			"reason":           "spam",
			"duration_minutes": 60,
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()

		// Banned user cannot rejoin
		resp = testRequest(t, app, http.MethodPost, "/api/rooms/1/join", "2", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		_ = resp.Body.Close()

		// Ban list is creator-only
		resp = testRequest(t, app, http.MethodGet, "/api/rooms/1/bans", "2", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		_ = resp.Body.Close()

		resp = testRequest(t, app, http.MethodGet, "/api/rooms/1/bans", "1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Bans []models.RoomBan `json:"bans"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()
		require.Len(t, body.Bans, 1)
		assert.Equal(t, "spam", body.Bans[0].Reason)
		assert.NotNil(t, body.Bans[0].ExpiresAt)
	})

	t.Run("Unban restores access", func(t *testing.T) {
		resp := testRequest(t, app, http.MethodDelete, "/api/rooms/1/bans/2", "1", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		resp = testRequest(t, app, http.MethodPost, "/api/rooms/1/join", "2", nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
