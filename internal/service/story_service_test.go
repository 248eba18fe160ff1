package service

import (
	"context"
	"testing"
	"time"

	"momoland/internal/models"
	"momoland/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func storyTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Follow{}, &models.Story{}, &models.StoryView{}))
	return db
}

func newStoryTestService(t *testing.T) (*StoryService, *gorm.DB) {
	t.Helper()
	db := storyTestDB(t)
	svc := NewStoryService(repository.NewStoryRepository(db), repository.NewUserRepository(db), nil)
	svc.uploadDir = t.TempDir()
	return svc, db
}

func TestStoryService_Create_Validation(t *testing.T) {
	svc, _ := newStoryTestService(t)
	ctx := context.Background()

	t.Run("Empty story", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateStoryInput{AuthorID: 1})
		assert.Error(t, err)
		assert.Equal(t, "VALIDATION_ERROR", err.(*models.AppError).Code)
	})

	t.Run("Bad media type", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateStoryInput{AuthorID: 1, Content: "hi", MediaType: "AUDIO"})
		assert.Error(t, err)
	})

	t.Run("Media story without URL", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateStoryInput{AuthorID: 1, Content: "hi", MediaType: "IMAGE"})
		assert.Error(t, err)
	})

	t.Run("Duration too long", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateStoryInput{AuthorID: 1, Content: "hi", Duration: 300})
		assert.Error(t, err)
	})

	t.Run("Malformed stickers", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateStoryInput{AuthorID: 1, Content: "hi", Stickers: []byte(`{"not":"a list"}`)})
		assert.Error(t, err)
	})
}

func TestStoryService_Create_StampsExpiry(t *testing.T) {
	svc, db := newStoryTestService(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	author := &models.User{Username: "ana", Email: "ana@e.com", Password: "x"}
	db.Create(author)

	story, err := svc.Create(context.Background(), CreateStoryInput{AuthorID: author.ID, Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, base, story.CreatedAt)
	assert.Equal(t, base.Add(models.StoryTTL), story.ExpiresAt)
	assert.True(t, story.IsActive)
	assert.Equal(t, models.StoryMediaText, story.MediaType)
	assert.Equal(t, models.DefaultStoryDuration, story.Duration)
}

func TestStoryService_Sweep(t *testing.T) {
	svc, db := newStoryTestService(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	author := &models.User{Username: "ben", Email: "ben@e.com", Password: "x"}
	db.Create(author)
	ctx := context.Background()

	fresh, err := svc.Create(ctx, CreateStoryInput{AuthorID: author.ID, Content: "fresh"})
	require.NoError(t, err)
	stale, err := svc.Create(ctx, CreateStoryInput{AuthorID: author.ID, Content: "stale"})
	require.NoError(t, err)

	// Advance past the stale story's TTL, then republish time for the fresh one
	db.Model(&models.Story{}).Where("id = ?", stale.ID).
		Update("expires_at", base.Add(-time.Minute))

	count, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var got models.Story
	require.NoError(t, db.First(&got, stale.ID).Error)
	assert.False(t, got.IsActive)
	got = models.Story{}
	require.NoError(t, db.First(&got, fresh.ID).Error)
	assert.True(t, got.IsActive)

	// Sweeping again is a no-op; nothing flips twice
	count, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestStoryService_ViewDedup(t *testing.T) {
	svc, db := newStoryTestService(t)
	ctx := context.Background()

	author := &models.User{Username: "cara", Email: "cara@e.com", Password: "x"}
	viewer := &models.User{Username: "dan", Email: "dan@e.com", Password: "x"}
	db.Create(author)
	db.Create(viewer)

	story, err := svc.Create(ctx, CreateStoryInput{AuthorID: author.ID, Content: "once"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkViewed(ctx, story.ID, viewer.ID))
	require.NoError(t, svc.MarkViewed(ctx, story.ID, viewer.ID))
	require.NoError(t, svc.MarkViewed(ctx, story.ID, viewer.ID))

	var viewCount int64
	db.Model(&models.StoryView{}).Where("story_id = ?", story.ID).Count(&viewCount)
	assert.Equal(t, int64(1), viewCount)

	resp, err := svc.Get(ctx, story.ID, viewer.ID)
	require.NoError(t, err)
	assert.True(t, resp.HasViewed)
}

func TestStoryService_SelfViewNotRecorded(t *testing.T) {
	svc, db := newStoryTestService(t)
	ctx := context.Background()

	author := &models.User{Username: "eli", Email: "eli@e.com", Password: "x"}
	db.Create(author)

	story, err := svc.Create(ctx, CreateStoryInput{AuthorID: author.ID, Content: "mine"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkViewed(ctx, story.ID, author.ID))

	var viewCount int64
	db.Model(&models.StoryView{}).Where("story_id = ?", story.ID).Count(&viewCount)
	assert.Equal(t, int64(0), viewCount)

	// Browsing own stories also records nothing but reports them viewed
	stories, err := svc.ByAuthor(ctx, author.ID, author.ID)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.True(t, stories[0].HasViewed)
	db.Model(&models.StoryView{}).Where("story_id = ?", story.ID).Count(&viewCount)
	assert.Equal(t, int64(0), viewCount)
}

func TestStoryService_Feed(t *testing.T) {
	svc, db := newStoryTestService(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	ctx := context.Background()

	viewer := &models.User{Username: "viewer", Email: "v@e.com", Password: "x"}
	followed := &models.User{Username: "followed", Email: "f@e.com", Password: "x"}
	stranger := &models.User{Username: "stranger", Email: "s@e.com", Password: "x"}
	db.Create(viewer)
	db.Create(followed)
	db.Create(stranger)
	db.Create(&models.Follow{FollowerID: viewer.ID, FollowedID: followed.ID})

	first, err := svc.Create(ctx, CreateStoryInput{AuthorID: followed.ID, Content: "first"})
	require.NoError(t, err)
	svc.now = func() time.Time { return base.Add(time.Hour) }
	_, err = svc.Create(ctx, CreateStoryInput{AuthorID: followed.ID, Content: "second"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateStoryInput{AuthorID: stranger.ID, Content: "unseen"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateStoryInput{AuthorID: viewer.ID, Content: "own"})
	require.NoError(t, err)

	feed, err := svc.Feed(ctx, viewer.ID)
	require.NoError(t, err)

	// Stranger's stories never appear; viewer sees followed authors plus self
	authors := map[uint]*AuthorFeed{}
	for _, group := range feed {
		authors[group.Author.ID] = group
	}
	require.Len(t, authors, 2)
	require.Contains(t, authors, followed.ID)
	require.Contains(t, authors, viewer.ID)

	followedGroup := authors[followed.ID]
	require.Len(t, followedGroup.Stories, 2)
	assert.Equal(t, "first", followedGroup.Stories[0].Content)
	assert.Equal(t, "second", followedGroup.Stories[1].Content)
	assert.False(t, followedGroup.AllViewed)

	// Own stories count as viewed
	assert.True(t, authors[viewer.ID].AllViewed)

	// Viewing one story is not enough to mark the group viewed
	require.NoError(t, svc.MarkViewed(ctx, first.ID, viewer.ID))
	feed, err = svc.Feed(ctx, viewer.ID)
	require.NoError(t, err)
	for _, group := range feed {
		if group.Author.ID == followed.ID {
			assert.False(t, group.AllViewed)
			assert.True(t, group.Stories[0].HasViewed)
			assert.False(t, group.Stories[1].HasViewed)
		}
	}
}

func TestStoryService_ExpiredHiddenBeforeSweep(t *testing.T) {
	svc, db := newStoryTestService(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	ctx := context.Background()

	author := &models.User{Username: "fay", Email: "fay@e.com", Password: "x"}
	viewer := &models.User{Username: "gus", Email: "gus@e.com", Password: "x"}
	db.Create(author)
	db.Create(viewer)
	db.Create(&models.Follow{FollowerID: viewer.ID, FollowedID: author.ID})

	story, err := svc.Create(ctx, CreateStoryInput{AuthorID: author.ID, Content: "soon gone"})
	require.NoError(t, err)

	// TTL elapses but no sweep has run; readers must not see the story
	svc.now = func() time.Time { return base.Add(models.StoryTTL + time.Minute) }

	feed, err := svc.Feed(ctx, viewer.ID)
	require.NoError(t, err)
	assert.Empty(t, feed)

	_, err = svc.Get(ctx, story.ID, viewer.ID)
	assert.Error(t, err)
	assert.Equal(t, "NOT_FOUND", err.(*models.AppError).Code)

	err = svc.MarkViewed(ctx, story.ID, viewer.ID)
	assert.Error(t, err)

	// The author can still open their own expired story
	resp, err := svc.Get(ctx, story.ID, author.ID)
	require.NoError(t, err)
	assert.Equal(t, story.ID, resp.ID)
}

func TestStoryService_Views_AuthorOnly(t *testing.T) {
	svc, db := newStoryTestService(t)
	ctx := context.Background()

	author := &models.User{Username: "hana", Email: "hana@e.com", Password: "x"}
	viewer := &models.User{Username: "ivy", Email: "ivy@e.com", Password: "x"}
	db.Create(author)
	db.Create(viewer)

	story, err := svc.Create(ctx, CreateStoryInput{AuthorID: author.ID, Content: "who saw this"})
	require.NoError(t, err)
	require.NoError(t, svc.MarkViewed(ctx, story.ID, viewer.ID))

	views, err := svc.Views(ctx, story.ID, author.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, viewer.ID, views[0].ViewerID)

	_, err = svc.Views(ctx, story.ID, viewer.ID)
	assert.Error(t, err)
	assert.Equal(t, "FORBIDDEN", err.(*models.AppError).Code)
}

func TestStoryService_Delete(t *testing.T) {
	svc, db := newStoryTestService(t)
	ctx := context.Background()

	author := &models.User{Username: "jo", Email: "jo@e.com", Password: "x"}
	other := &models.User{Username: "kim", Email: "kim@e.com", Password: "x"}
	db.Create(author)
	db.Create(other)

	story, err := svc.Create(ctx, CreateStoryInput{AuthorID: author.ID, Content: "bye"})
	require.NoError(t, err)

	err = svc.Delete(ctx, story.ID, other.ID, false)
	assert.Error(t, err)
	assert.Equal(t, "FORBIDDEN", err.(*models.AppError).Code)

	// A moderator may remove someone else's story
	require.NoError(t, svc.Delete(ctx, story.ID, other.ID, true))
	_, err = svc.Get(ctx, story.ID, author.ID)
	assert.Error(t, err)
}
