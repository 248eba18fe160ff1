package server

import (
	"time"

	"momoland/internal/models"
	"momoland/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateRoom handles POST /api/rooms
func (s *Server) CreateRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Atmosphere  string `json:"atmosphere"`
		IsPrivate   bool   `json:"is_private"`
		MaxMembers  int    `json:"max_members"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	room, err := s.chatService.CreateRoom(c.UserContext(), service.CreateRoomInput{
		CreatorID:   userID,
		Name:        req.Name,
		Description: req.Description,
		Atmosphere:  req.Atmosphere,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(room)
}

// GetRooms handles GET /api/rooms
func (s *Server) GetRooms(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	rooms, err := s.chatService.GetRooms(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

// GetRoom handles GET /api/rooms/:id
func (s *Server) GetRoom(c *fiber.Ctx) error {
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	room, err := s.chatService.GetRoom(c.UserContext(), roomID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(room)
}

// JoinRoom handles POST /api/rooms/:id/join
func (s *Server) JoinRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	room, err := s.chatService.JoinRoom(c.UserContext(), roomID, userID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(room)
}

// LeaveRoom handles POST /api/rooms/:id/leave
func (s *Server) LeaveRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.chatService.LeaveRoom(c.UserContext(), roomID, userID); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Left room"})
}

// CloseRoom handles POST /api/rooms/:id/close
func (s *Server) CloseRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.chatService.CloseRoom(c.UserContext(), roomID, userID, false); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Room closed"})
}

// GetOnlineMembers handles GET /api/rooms/:id/members/online
func (s *Server) GetOnlineMembers(c *fiber.Ctx) error {
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	members, err := s.chatService.OnlineMembers(c.UserContext(), roomID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"members": members,
		"count":   len(members),
	})
}

// GetRoomMessages handles GET /api/rooms/:id/messages
func (s *Server) GetRoomMessages(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	p := parsePagination(c, 50)

	messages, err := s.chatService.GetMessages(c.UserContext(), roomID, userID, p.Limit, p.Offset)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// SendRoomMessage handles POST /api/rooms/:id/messages
func (s *Server) SendRoomMessage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	msg, err := s.chatService.SendMessage(c.UserContext(), roomID, userID, req.Content)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// DeleteRoomMessage handles DELETE /api/rooms/:id/messages/:messageId
func (s *Server) DeleteRoomMessage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	msgID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}

	isModerator := s.canModerate(c, userID, models.PermModerateRooms)
	if err := s.chatService.DeleteMessage(c.UserContext(), roomID, msgID, userID, isModerator); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Message deleted"})
}

// GetRoomBans handles GET /api/rooms/:id/bans
func (s *Server) GetRoomBans(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	isModerator := s.canModerate(c, userID, models.PermModerateRooms)
	bans, err := s.chatService.GetBans(c.UserContext(), roomID, userID, isModerator)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"bans": bans})
}

// BanRoomUser handles POST /api/rooms/:id/bans/:userId
func (s *Server) BanRoomUser(c *fiber.Ctx) error {
	actorID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	var req struct {
		Reason          string `json:"reason"`
		DurationMinutes int    `json:"duration_minutes"` // 0 = permanent
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	var expiresAt *time.Time
	if req.DurationMinutes > 0 {
		t := time.Now().UTC().Add(time.Duration(req.DurationMinutes) * time.Minute)
		expiresAt = &t
	}

	isModerator := s.canModerate(c, actorID, models.PermModerateRooms)
	if err := s.chatService.BanUser(c.UserContext(), roomID, targetID, actorID, req.Reason, expiresAt, isModerator); err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "User banned"})
}

// UnbanRoomUser handles DELETE /api/rooms/:id/bans/:userId
func (s *Server) UnbanRoomUser(c *fiber.Ctx) error {
	actorID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	isModerator := s.canModerate(c, actorID, models.PermModerateRooms)
	if err := s.chatService.UnbanUser(c.UserContext(), roomID, targetID, actorID, isModerator); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "User unbanned"})
}
