package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"momoland/internal/models"
	"momoland/internal/notifications"
	"momoland/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxRoomNameLen       = 80
	maxChatMessageLen    = 4000
	minRoomMaxMembers    = 2
	maxRoomMaxMembers    = 500
	absoluteRoomMessages = 100
)

// CreateRoomInput is the input for creating a chat room.
type CreateRoomInput struct {
	CreatorID   uint
	Name        string
	Description string
	Atmosphere  string
	IsPrivate   bool
	MaxMembers  int
}

// RoomResponse pairs a room with its live member counts.
type RoomResponse struct {
	*models.ChatRoom
	MemberCount int64 `json:"member_count"`
	OnlineCount int   `json:"online_count"`
}

// ChatService provides room, presence, messaging, and ban business logic.
type ChatService struct {
	chatRepo repository.ChatRepository
	userRepo repository.UserRepository
	db       *gorm.DB
	notifier *notifications.Notifier
	now      func() time.Time
}

// NewChatService returns a new ChatService.
func NewChatService(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	db *gorm.DB,
	notifier *notifications.Notifier,
) *ChatService {
	return &ChatService{
		chatRepo: chatRepo,
		userRepo: userRepo,
		db:       db,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRoom creates a room and enrolls the creator as its first member.
func (s *ChatService) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.ChatRoom, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.NewValidationError("Room name is required")
	}
	if len(name) > maxRoomNameLen {
		return nil, models.NewValidationError(fmt.Sprintf("Room name too long (max %d characters)", maxRoomNameLen))
	}

	maxMembers := in.MaxMembers
	if maxMembers == 0 {
		maxMembers = models.DefaultRoomMaxMembers
	}
	if maxMembers < minRoomMaxMembers || maxMembers > maxRoomMaxMembers {
		return nil, models.NewValidationError(fmt.Sprintf("Room capacity must be between %d and %d", minRoomMaxMembers, maxRoomMaxMembers))
	}

	room := &models.ChatRoom{
		Name:        name,
		Description: in.Description,
		Atmosphere:  in.Atmosphere,
		IsPrivate:   in.IsPrivate,
		MaxMembers:  maxMembers,
		CreatorID:   in.CreatorID,
		Status:      models.RoomStatusActive,
	}
	if err := s.chatRepo.CreateRoom(ctx, room); err != nil {
		return nil, models.NewInternalError(err)
	}

	// The creator is a member from the start, offline until a socket joins.
	member := &models.RoomMember{RoomID: room.ID, UserID: in.CreatorID}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	return room, nil
}

// GetRooms returns active rooms ordered by recent activity, with counts.
func (s *ChatService) GetRooms(ctx context.Context, limit, offset int) ([]*RoomResponse, error) {
	rooms, err := s.chatRepo.GetRooms(ctx, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	result := make([]*RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		memberCount, err := s.chatRepo.CountMembers(ctx, room.ID)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		online, err := s.chatRepo.GetOnlineMembers(ctx, room.ID)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		result = append(result, &RoomResponse{
			ChatRoom:    room,
			MemberCount: memberCount,
			OnlineCount: len(online),
		})
	}
	return result, nil
}

// GetRoom returns a room with its member counts.
func (s *ChatService) GetRoom(ctx context.Context, roomID uint) (*RoomResponse, error) {
	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Room", roomID)
		}
		return nil, models.NewInternalError(err)
	}
	memberCount, err := s.chatRepo.CountMembers(ctx, roomID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	online, err := s.chatRepo.GetOnlineMembers(ctx, roomID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &RoomResponse{ChatRoom: room, MemberCount: memberCount, OnlineCount: len(online)}, nil
}

// JoinRoom makes the user an online member of the room. Capacity is checked
// against ALL members (online and offline) inside a transaction so two
// concurrent joins cannot both squeeze past the limit. Returning members skip
// the capacity check since their seat is already counted.
func (s *ChatService) JoinRoom(ctx context.Context, roomID, userID uint) (*models.ChatRoom, error) {
	if err := s.checkBan(ctx, roomID, userID); err != nil {
		return nil, err
	}

	var room models.ChatRoom
	rejoining := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&room, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Room", roomID)
			}
			return err
		}
		if room.Status != models.RoomStatusActive {
			return models.NewConflictError("Room is closed")
		}

		var existing models.RoomMember
		err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).First(&existing).Error
		switch {
		case err == nil:
			rejoining = true
		case errors.Is(err, gorm.ErrRecordNotFound):
			var count int64
			if err := tx.Model(&models.RoomMember{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(room.MaxMembers) {
				return models.NewConflictError("Room is full")
			}
		default:
			return err
		}

		// The upsert runs on the transaction so the capacity check and the
		// membership write commit or roll back together.
		return repository.NewChatRepository(tx).UpsertMemberOnline(ctx, roomID, userID)
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, models.NewInternalError(err)
	}

	username := s.usernameOf(ctx, userID)

	// First-time joins leave a system message in the history.
	if !rejoining {
		joinMsg := &models.ChatMessage{
			RoomID:  roomID,
			UserID:  userID,
			Content: fmt.Sprintf("%s joined the room", username),
			Type:    models.MessageTypeJoin,
		}
		if err := s.chatRepo.CreateMessage(ctx, joinMsg); err != nil {
			slog.Warn("failed to record join message", "room_id", roomID, "user_id", userID, "error", err)
		}
	}

	s.publishRoom(ctx, roomID, notifications.RoomEvent{
		Type:     "user-joined",
		UserID:   userID,
		Username: username,
	})
	s.publishPresence(ctx, roomID)

	return &room, nil
}

// LeaveRoom removes the user's membership entirely.
func (s *ChatService) LeaveRoom(ctx context.Context, roomID, userID uint) error {
	if _, err := s.chatRepo.GetMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Room membership", roomID)
		}
		return models.NewInternalError(err)
	}

	if err := s.chatRepo.RemoveMember(ctx, roomID, userID); err != nil {
		return models.NewInternalError(err)
	}

	username := s.usernameOf(ctx, userID)
	leaveMsg := &models.ChatMessage{
		RoomID:  roomID,
		UserID:  userID,
		Content: fmt.Sprintf("%s left the room", username),
		Type:    models.MessageTypeLeave,
	}
	if err := s.chatRepo.CreateMessage(ctx, leaveMsg); err != nil {
		slog.Warn("failed to record leave message", "room_id", roomID, "user_id", userID, "error", err)
	}

	s.publishRoom(ctx, roomID, notifications.RoomEvent{
		Type:     "user-left",
		UserID:   userID,
		Username: username,
	})
	s.publishPresence(ctx, roomID)
	return nil
}

// HandleDisconnect marks a member offline when their socket drops. The
// membership itself survives; only presence changes.
func (s *ChatService) HandleDisconnect(ctx context.Context, roomID, userID uint) {
	if err := s.chatRepo.SetMemberOffline(ctx, roomID, userID, s.now()); err != nil {
		slog.Warn("failed to mark member offline", "room_id", roomID, "user_id", userID, "error", err)
		return
	}
	s.publishPresence(ctx, roomID)
}

// SendMessage persists a message and then broadcasts it. The write always
// lands before the broadcast so history and the live stream agree.
func (s *ChatService) SendMessage(ctx context.Context, roomID, userID uint, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if len(content) > maxChatMessageLen {
		return nil, models.NewValidationError(fmt.Sprintf("Message too long (max %d characters)", maxChatMessageLen))
	}

	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Room", roomID)
		}
		return nil, models.NewInternalError(err)
	}
	if room.Status != models.RoomStatusActive {
		return nil, models.NewConflictError("Room is closed")
	}

	if _, err := s.chatRepo.GetMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewForbiddenError("You are not a member of this room")
		}
		return nil, models.NewInternalError(err)
	}
	if err := s.checkBan(ctx, roomID, userID); err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		RoomID:  roomID,
		UserID:  userID,
		Content: content,
		Type:    models.MessageTypeMessage,
	}
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.chatRepo.TouchRoom(ctx, roomID); err != nil {
		slog.Warn("failed to touch room", "room_id", roomID, "error", err)
	}

	if sender, err := s.userRepo.GetByID(ctx, userID); err == nil {
		msg.User = sender
	}

	s.publishRoom(ctx, roomID, notifications.RoomEvent{
		Type:     "new-message",
		UserID:   userID,
		Username: s.usernameOf(ctx, userID),
		Payload:  msg,
	})
	return msg, nil
}

// GetMessages returns room history oldest first, members only. Soft-deleted
// messages are excluded.
func (s *ChatService) GetMessages(ctx context.Context, roomID, userID uint, limit, offset int) ([]*models.ChatMessage, error) {
	if _, err := s.chatRepo.GetMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewForbiddenError("You are not a member of this room")
		}
		return nil, models.NewInternalError(err)
	}
	if limit <= 0 || limit > absoluteRoomMessages {
		limit = 50
	}
	messages, err := s.chatRepo.GetMessages(ctx, roomID, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// DeleteMessage soft-deletes a message. The sender may delete their own;
// moderators may delete anyone's.
func (s *ChatService) DeleteMessage(ctx context.Context, roomID, msgID, actorID uint, isModerator bool) error {
	msg, err := s.chatRepo.GetMessage(ctx, msgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Message", msgID)
		}
		return models.NewInternalError(err)
	}
	if msg.RoomID != roomID {
		return models.NewNotFoundError("Message", msgID)
	}
	if msg.UserID != actorID && !isModerator {
		return models.NewForbiddenError("You can only delete your own messages")
	}
	if err := s.chatRepo.SoftDeleteMessage(ctx, msgID, actorID, s.now()); err != nil {
		return models.NewInternalError(err)
	}

	s.publishRoom(ctx, roomID, notifications.RoomEvent{
		Type:    "message-deleted",
		UserID:  actorID,
		Payload: map[string]uint{"message_id": msgID},
	})
	return nil
}

// OnlineMembers returns the room's currently online members.
func (s *ChatService) OnlineMembers(ctx context.Context, roomID uint) ([]*models.RoomMember, error) {
	members, err := s.chatRepo.GetOnlineMembers(ctx, roomID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return members, nil
}

// BanUser bans a user from a room, removing their membership. Only the room
// creator or a moderator may ban. A nil expiry means permanent.
func (s *ChatService) BanUser(ctx context.Context, roomID, targetID, actorID uint, reason string, expiresAt *time.Time, isModerator bool) error {
	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Room", roomID)
		}
		return models.NewInternalError(err)
	}
	if room.CreatorID != actorID && !isModerator {
		return models.NewForbiddenError("You do not have permission to moderate this room")
	}
	if targetID == room.CreatorID {
		return models.NewValidationError("The room creator cannot be banned")
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return models.NewValidationError("Ban expiry must be in the future")
	}

	ban := &models.RoomBan{
		RoomID:    roomID,
		UserID:    targetID,
		BannedBy:  actorID,
		Reason:    reason,
		ExpiresAt: expiresAt,
	}
	if err := s.chatRepo.UpsertBan(ctx, ban); err != nil {
		return models.NewInternalError(err)
	}
	if err := s.chatRepo.RemoveMember(ctx, roomID, targetID); err != nil {
		return models.NewInternalError(err)
	}

	s.publishRoom(ctx, roomID, notifications.RoomEvent{
		Type:     "user-banned",
		UserID:   targetID,
		Username: s.usernameOf(ctx, targetID),
	})
	s.publishPresence(ctx, roomID)
	return nil
}

// UnbanUser lifts a room ban.
func (s *ChatService) UnbanUser(ctx context.Context, roomID, targetID, actorID uint, isModerator bool) error {
	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Room", roomID)
		}
		return models.NewInternalError(err)
	}
	if room.CreatorID != actorID && !isModerator {
		return models.NewForbiddenError("You do not have permission to moderate this room")
	}
	if err := s.chatRepo.RemoveBan(ctx, roomID, targetID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// GetBans lists a room's bans, creator or moderator only. Expired bans are
// included; clients can tell them apart by expiry.
func (s *ChatService) GetBans(ctx context.Context, roomID, actorID uint, isModerator bool) ([]*models.RoomBan, error) {
	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Room", roomID)
		}
		return nil, models.NewInternalError(err)
	}
	if room.CreatorID != actorID && !isModerator {
		return nil, models.NewForbiddenError("You do not have permission to moderate this room")
	}
	bans, err := s.chatRepo.GetBans(ctx, roomID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return bans, nil
}

// CloseRoom closes a room. The creator may close their own room; admins may
// force-close any room via the admin surface.
func (s *ChatService) CloseRoom(ctx context.Context, roomID, actorID uint, forced bool) error {
	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Room", roomID)
		}
		return models.NewInternalError(err)
	}
	if !forced && room.CreatorID != actorID {
		return models.NewForbiddenError("Only the room creator can close this room")
	}
	if room.Status == models.RoomStatusClosed {
		return models.NewConflictError("Room is already closed")
	}
	if err := s.chatRepo.CloseRoom(ctx, roomID, forced); err != nil {
		return models.NewInternalError(err)
	}

	s.publishRoom(ctx, roomID, notifications.RoomEvent{Type: "room-closed", UserID: actorID})
	return nil
}

// checkBan enforces an active ban and lazily clears expired ones.
func (s *ChatService) checkBan(ctx context.Context, roomID, userID uint) error {
	ban, err := s.chatRepo.GetBan(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return models.NewInternalError(err)
	}
	if ban.IsActive(s.now()) {
		return models.NewForbiddenError("You are banned from this room")
	}
	// Expired ban rows are cleared on first contact rather than by a sweep.
	if err := s.chatRepo.RemoveBan(ctx, roomID, userID); err != nil {
		slog.Warn("failed to clear expired ban", "room_id", roomID, "user_id", userID, "error", err)
	}
	return nil
}

func (s *ChatService) usernameOf(ctx context.Context, userID uint) string {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || user == nil {
		return fmt.Sprintf("user-%d", userID)
	}
	return user.Username
}

func (s *ChatService) publishRoom(ctx context.Context, roomID uint, event notifications.RoomEvent) {
	if s.notifier == nil {
		return
	}
	event.RoomID = roomID
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal room event", "room_id", roomID, "error", err)
		return
	}
	if err := s.notifier.PublishRoomEvent(ctx, roomID, string(payload)); err != nil {
		slog.Warn("failed to publish room event", "room_id", roomID, "type", event.Type, "error", err)
	}
}

// publishPresence broadcasts the room's current online roster.
func (s *ChatService) publishPresence(ctx context.Context, roomID uint) {
	members, err := s.chatRepo.GetOnlineMembers(ctx, roomID)
	if err != nil {
		slog.Warn("failed to load online members", "room_id", roomID, "error", err)
		return
	}
	roster := make([]models.UserSummary, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			roster = append(roster, m.User.Summary())
		} else {
			roster = append(roster, models.UserSummary{ID: m.UserID})
		}
	}
	s.publishRoom(ctx, roomID, notifications.RoomEvent{
		Type:    "presence",
		Payload: map[string]interface{}{"online": roster, "count": len(roster)},
	})
}
