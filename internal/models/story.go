package models

import (
	"encoding/json"
	"time"
)

// Media types supported for stories.
const (
	StoryMediaText  = "TEXT"
	StoryMediaImage = "IMAGE"
	StoryMediaVideo = "VIDEO"
)

// StoryTTL is how long a story stays visible after creation.
const StoryTTL = 24 * time.Hour

// DefaultStoryDuration is the per-story display time in seconds.
const DefaultStoryDuration = 5

// Story is an ephemeral post that expires StoryTTL after creation.
// ExpiresAt is stamped once at creation and never changes; IsActive flips
// true -> false exactly once, done by the sweep.
type Story struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	AuthorID        uint            `gorm:"not null;index" json:"author_id"`
	Author          *User           `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content         string          `gorm:"type:text" json:"content"`
	MediaURL        string          `json:"media_url"`
	MediaType       string          `gorm:"default:'TEXT'" json:"media_type"`
	Duration        int             `gorm:"default:5" json:"duration"` // seconds
	BackgroundColor string          `json:"background_color"`
	TextColor       string          `json:"text_color"`
	FontSize        int             `json:"font_size"`
	FontStyle       string          `json:"font_style"`
	Stickers        json.RawMessage `gorm:"type:json" json:"stickers,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `gorm:"not null;index" json:"expires_at"`
	IsActive        bool            `gorm:"default:true;index" json:"is_active"`

	Views []StoryView `gorm:"foreignKey:StoryID;constraint:OnDelete:CASCADE" json:"views,omitempty"`
}

// IsExpired reports whether the story's TTL has elapsed at the given instant.
// Read queries use the same predicate to exclude rows the sweep has not
// retired yet.
func (s *Story) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// StorySticker is a positioned overlay rendered on top of a story.
// Stickers are stored as an ordered JSON list on the story row.
type StorySticker struct {
	Kind     string  `json:"kind"` // "emoji", "gif", "mention"
	Value    string  `json:"value"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
}

// StoryView records that a viewer has seen a story. The composite unique
// index guarantees at most one row per (story, viewer) pair.
type StoryView struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	StoryID  uint      `gorm:"not null;uniqueIndex:idx_story_viewer" json:"story_id"`
	ViewerID uint      `gorm:"not null;uniqueIndex:idx_story_viewer" json:"viewer_id"`
	Viewer   *User     `gorm:"foreignKey:ViewerID" json:"viewer,omitempty"`
	ViewedAt time.Time `gorm:"autoCreateTime" json:"viewed_at"`
}

// TableName specifies the table name for GORM.
func (StoryView) TableName() string {
	return "story_views"
}
