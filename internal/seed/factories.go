// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"momoland/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultSeedPassword is used for every generated account so developers can
// log in as any of them.
const DefaultSeedPassword = "Str0ng-seed-pass!"

var roomAtmospheres = []string{"cozy", "hype", "chill", "late-night", "study", "gaming"}

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by seed presets and tests.
type Factory struct {
	db   *gorm.DB
	rand *rand.Rand
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		db:   db,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateUser constructs and persists a sample user.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultSeedPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: gofakeit.Username() + fmt.Sprintf("%d", gofakeit.Number(100, 999)),
		Email:    gofakeit.Email(),
		Password: string(hashed),
		Bio:      gofakeit.Sentence(10),
		Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
	}
	for _, override := range overrides {
		override(user)
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateStory persists a story for the author. About one in five generated
// stories is already expired so sweep behavior is visible in development.
func (f *Factory) CreateStory(author *models.User, overrides ...func(*models.Story)) (*models.Story, error) {
	createdAt := time.Now().UTC().Add(-time.Duration(f.rand.Intn(20)) * time.Hour)
	if f.rand.Intn(5) == 0 {
		createdAt = time.Now().UTC().Add(-time.Duration(25+f.rand.Intn(48)) * time.Hour)
	}

	story := &models.Story{
		AuthorID:        author.ID,
		Content:         gofakeit.Sentence(8),
		MediaType:       models.StoryMediaText,
		Duration:        models.DefaultStoryDuration,
		BackgroundColor: gofakeit.HexColor(),
		TextColor:       "#ffffff",
		FontSize:        16 + f.rand.Intn(16),
		CreatedAt:       createdAt,
		ExpiresAt:       createdAt.Add(models.StoryTTL),
		IsActive:        true,
	}
	for _, override := range overrides {
		override(story)
	}
	if err := f.db.Create(story).Error; err != nil {
		return nil, err
	}
	return story, nil
}

// CreateStoryView records that a viewer has seen a story.
func (f *Factory) CreateStoryView(story *models.Story, viewer *models.User) error {
	return f.db.Create(&models.StoryView{
		StoryID:  story.ID,
		ViewerID: viewer.ID,
	}).Error
}

// CreateRoom persists a chat room with the creator enrolled as a member.
func (f *Factory) CreateRoom(creator *models.User, overrides ...func(*models.ChatRoom)) (*models.ChatRoom, error) {
	room := &models.ChatRoom{
		Name:        gofakeit.NounAbstract() + " lounge",
		Description: gofakeit.Sentence(12),
		Atmosphere:  roomAtmospheres[f.rand.Intn(len(roomAtmospheres))],
		MaxMembers:  models.DefaultRoomMaxMembers,
		CreatorID:   creator.ID,
		Status:      models.RoomStatusActive,
	}
	for _, override := range overrides {
		override(room)
	}
	if err := f.db.Create(room).Error; err != nil {
		return nil, err
	}
	if err := f.db.Create(&models.RoomMember{RoomID: room.ID, UserID: creator.ID}).Error; err != nil {
		return nil, err
	}
	return room, nil
}

// AddRoomMember enrolls a user in a room.
func (f *Factory) AddRoomMember(room *models.ChatRoom, user *models.User, online bool) error {
	return f.db.Create(&models.RoomMember{
		RoomID:   room.ID,
		UserID:   user.ID,
		IsOnline: online,
	}).Error
}

// CreateRoomMessage persists a chat message in a room.
func (f *Factory) CreateRoomMessage(room *models.ChatRoom, sender *models.User, overrides ...func(*models.ChatMessage)) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		RoomID:  room.ID,
		UserID:  sender.ID,
		Content: gofakeit.Sentence(6 + f.rand.Intn(10)),
		Type:    models.MessageTypeMessage,
	}
	for _, override := range overrides {
		override(msg)
	}
	if err := f.db.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// CreatePost persists a feed post.
func (f *Factory) CreatePost(author *models.User, overrides ...func(*models.Post)) (*models.Post, error) {
	post := &models.Post{
		Title:   gofakeit.Sentence(5),
		Content: gofakeit.Paragraph(1, 3, 5, "\n"),
		UserID:  author.ID,
	}
	for _, override := range overrides {
		override(post)
	}
	if err := f.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment persists a comment on a post.
func (f *Factory) CreateComment(post *models.Post, author *models.User) (*models.Comment, error) {
	comment := &models.Comment{
		PostID:  post.ID,
		UserID:  author.ID,
		Content: gofakeit.Sentence(8),
	}
	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// Follow makes follower follow followed.
func (f *Factory) Follow(follower, followed *models.User) error {
	return f.db.Create(&models.Follow{
		FollowerID: follower.ID,
		FollowedID: followed.ID,
	}).Error
}
