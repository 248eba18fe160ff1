package repository

import (
	"context"
	"time"

	"momoland/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository defines the interface for chat room data operations
type ChatRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, id uint) (*models.ChatRoom, error)
	GetRooms(ctx context.Context, limit, offset int) ([]*models.ChatRoom, error)
	CloseRoom(ctx context.Context, roomID uint, forced bool) error
	TouchRoom(ctx context.Context, roomID uint) error
	CountMembers(ctx context.Context, roomID uint) (int64, error)
	GetMember(ctx context.Context, roomID, userID uint) (*models.RoomMember, error)
	GetOnlineMembers(ctx context.Context, roomID uint) ([]*models.RoomMember, error)
	UpsertMemberOnline(ctx context.Context, roomID, userID uint) error
	SetMemberOffline(ctx context.Context, roomID, userID uint, lastSeen time.Time) error
	RemoveMember(ctx context.Context, roomID, userID uint) error
	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	GetMessages(ctx context.Context, roomID uint, limit, offset int) ([]*models.ChatMessage, error)
	GetMessage(ctx context.Context, msgID uint) (*models.ChatMessage, error)
	SoftDeleteMessage(ctx context.Context, msgID, deletedBy uint, at time.Time) error
	GetBan(ctx context.Context, roomID, userID uint) (*models.RoomBan, error)
	UpsertBan(ctx context.Context, ban *models.RoomBan) error
	RemoveBan(ctx context.Context, roomID, userID uint) error
	GetBans(ctx context.Context, roomID uint) ([]*models.RoomBan, error)
}

// chatRepository implements ChatRepository
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *chatRepository) GetRoom(ctx context.Context, id uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Creator").
		First(&room, id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *chatRepository) GetRooms(ctx context.Context, limit, offset int) ([]*models.ChatRoom, error) {
	var rooms []*models.ChatRoom
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RoomStatusActive).
		Preload("Creator").
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rooms).Error
	return rooms, err
}

func (r *chatRepository) CloseRoom(ctx context.Context, roomID uint, forced bool) error {
	return r.db.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("id = ?", roomID).
		Updates(map[string]interface{}{
			"status":    models.RoomStatusClosed,
			"is_forced": forced,
		}).Error
}

// TouchRoom bumps updated_at so room lists sort by recent activity.
func (r *chatRepository) TouchRoom(ctx context.Context, roomID uint) error {
	return r.db.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("id = ?", roomID).
		Update("updated_at", time.Now().UTC()).Error
}

func (r *chatRepository) CountMembers(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	return count, err
}

func (r *chatRepository) GetMember(ctx context.Context, roomID, userID uint) (*models.RoomMember, error) {
	var member models.RoomMember
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *chatRepository) GetOnlineMembers(ctx context.Context, roomID uint) ([]*models.RoomMember, error) {
	var members []*models.RoomMember
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND is_online = ?", roomID, true).
		Preload("User").
		Find(&members).Error
	return members, err
}

// UpsertMemberOnline creates the membership row on first join and flips
// is_online on re-join, so (room, user) stays unique.
func (r *chatRepository) UpsertMemberOnline(ctx context.Context, roomID, userID uint) error {
	member := models.RoomMember{
		RoomID:   roomID,
		UserID:   userID,
		IsOnline: true,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "room_id"},
			{Name: "user_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_online": true,
		}),
	}).Create(&member).Error
}

func (r *chatRepository) SetMemberOffline(ctx context.Context, roomID, userID uint, lastSeen time.Time) error {
	return r.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(map[string]interface{}{
			"is_online": false,
			"last_seen": lastSeen,
		}).Error
}

func (r *chatRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomMember{}).Error
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) GetMessages(ctx context.Context, roomID uint, limit, offset int) ([]*models.ChatMessage, error) {
	var messages []*models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND is_deleted = ?", roomID, false).
		Preload("User").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Fetched DESC to get the latest page; client expects chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) GetMessage(ctx context.Context, msgID uint) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.WithContext(ctx).First(&msg, msgID).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SoftDeleteMessage marks a message deleted without removing the row, keeping
// it for audit.
func (r *chatRepository) SoftDeleteMessage(ctx context.Context, msgID, deletedBy uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("id = ?", msgID).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_by": deletedBy,
			"deleted_at": at,
		}).Error
}

func (r *chatRepository) GetBan(ctx context.Context, roomID, userID uint) (*models.RoomBan, error) {
	var ban models.RoomBan
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&ban).Error
	if err != nil {
		return nil, err
	}
	return &ban, nil
}

func (r *chatRepository) UpsertBan(ctx context.Context, ban *models.RoomBan) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "room_id"},
			{Name: "user_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"banned_by":  ban.BannedBy,
			"reason":     ban.Reason,
			"expires_at": ban.ExpiresAt,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(ban).Error
}

func (r *chatRepository) RemoveBan(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomBan{}).Error
}

func (r *chatRepository) GetBans(ctx context.Context, roomID uint) ([]*models.RoomBan, error) {
	var bans []*models.RoomBan
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Preload("User").
		Preload("BannedByUser").
		Order("created_at DESC").
		Find(&bans).Error
	return bans, err
}
