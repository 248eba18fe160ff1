package models

import (
	"time"

	"gorm.io/gorm"
)

// Room statuses.
const (
	RoomStatusActive = "ACTIVE"
	RoomStatusClosed = "CLOSED"
)

// Chat message types.
const (
	MessageTypeMessage = "message"
	MessageTypeJoin    = "join"
	MessageTypeLeave   = "leave"
)

// DefaultRoomMaxMembers caps room size when a creator does not specify one.
const DefaultRoomMaxMembers = 50

// ChatRoom is a public or private group chat. UpdatedAt is bumped on every
// message so room lists sort by recent activity.
type ChatRoom struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Atmosphere  string         `json:"atmosphere"`
	IsPrivate   bool           `gorm:"default:false" json:"is_private"`
	MaxMembers  int            `gorm:"default:50" json:"max_members"`
	CreatorID   uint           `gorm:"not null;index" json:"creator_id"`
	Creator     *User          `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Status      string         `gorm:"default:'ACTIVE'" json:"status"`
	IsForced    bool           `gorm:"default:false" json:"is_forced"` // admin-forced closure
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Members  []RoomMember  `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	Messages []ChatMessage `gorm:"foreignKey:RoomID" json:"messages,omitempty"`
}

// TableName specifies the table name for GORM.
func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// RoomMember tracks a user's membership and presence in a room. The composite
// primary key guarantees at most one row per (room, user); re-joining updates
// the existing row.
type RoomMember struct {
	RoomID   uint       `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	UserID   uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	User     *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	IsOnline bool       `gorm:"default:false;index" json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	JoinedAt time.Time  `gorm:"autoCreateTime" json:"joined_at"`
}

// TableName specifies the table name for GORM.
func (RoomMember) TableName() string {
	return "room_members"
}

// ChatMessage is a message in a room. Join/leave system messages share the
// table so history reads back contiguously. Soft-deleted messages stay in the
// table for audit but are excluded from normal reads.
type ChatMessage struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	RoomID    uint       `gorm:"not null;index" json:"room_id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	Type      string     `gorm:"default:'message'" json:"type"`
	IsDeleted bool       `gorm:"default:false;index" json:"is_deleted"`
	DeletedBy *uint      `json:"deleted_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// RoomBan stores room-scoped bans for moderation. A ban with ExpiresAt in the
// past is treated as inactive; there is no separate expiry sweep for bans.
type RoomBan struct {
	RoomID    uint       `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	UserID    uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BannedBy  uint       `gorm:"not null;index" json:"banned_by"`
	Reason    string     `gorm:"type:text;default:''" json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	User         *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BannedByUser *User `gorm:"foreignKey:BannedBy" json:"banned_by_user,omitempty"`
}

// TableName specifies the table name for GORM.
func (RoomBan) TableName() string {
	return "room_bans"
}

// IsActive reports whether the ban is still in force at the given instant.
func (b *RoomBan) IsActive(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}
