package repository

import (
	"context"
	"time"

	"momoland/internal/models"
	"momoland/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoryRepository defines the interface for story data operations
type StoryRepository interface {
	Create(ctx context.Context, story *models.Story) error
	GetByID(ctx context.Context, id uint) (*models.Story, error)
	ActiveByAuthors(ctx context.Context, authorIDs []uint, now time.Time) ([]*models.Story, error)
	ActiveByAuthor(ctx context.Context, authorID uint, now time.Time) ([]*models.Story, error)
	Delete(ctx context.Context, id uint) error
	RecordView(ctx context.Context, storyID, viewerID uint) error
	GetViews(ctx context.Context, storyID uint) ([]*models.StoryView, error)
	ViewedStoryIDs(ctx context.Context, viewerID uint, storyIDs []uint) (map[uint]bool, error)
	ExpiredActive(ctx context.Context, now time.Time) ([]*models.Story, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// storyRepository implements StoryRepository
type storyRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewStoryRepository creates a new story repository
func NewStoryRepository(db *gorm.DB) StoryRepository {
	return &storyRepository{db: db, metrics: observability.NewDatabaseMetrics(db)}
}

func (r *storyRepository) Create(ctx context.Context, story *models.Story) error {
	return r.db.WithContext(ctx).Create(story).Error
}

func (r *storyRepository) GetByID(ctx context.Context, id uint) (*models.Story, error) {
	var story models.Story
	err := r.db.WithContext(ctx).
		Preload("Author").
		First(&story, id).Error
	if err != nil {
		return nil, err
	}
	return &story, nil
}

// ActiveByAuthors returns unexpired active stories for the given authors,
// oldest first within each author. The expires_at filter closes the window
// between a story expiring and the next sweep retiring it.
func (r *storyRepository) ActiveByAuthors(ctx context.Context, authorIDs []uint, now time.Time) ([]*models.Story, error) {
	if len(authorIDs) == 0 {
		return []*models.Story{}, nil
	}
	defer r.metrics.TrackQuery("select_active", "stories")()
	var stories []*models.Story
	err := r.db.WithContext(ctx).
		Where("author_id IN ? AND is_active = ? AND expires_at > ?", authorIDs, true, now).
		Preload("Author").
		Order("author_id, created_at ASC").
		Find(&stories).Error
	return stories, err
}

func (r *storyRepository) ActiveByAuthor(ctx context.Context, authorID uint, now time.Time) ([]*models.Story, error) {
	var stories []*models.Story
	err := r.db.WithContext(ctx).
		Where("author_id = ? AND is_active = ? AND expires_at > ?", authorID, true, now).
		Preload("Author").
		Order("created_at ASC").
		Find(&stories).Error
	return stories, err
}

func (r *storyRepository) Delete(ctx context.Context, id uint) error {
	// Views cascade with the story row.
	if err := r.db.WithContext(ctx).
		Where("story_id = ?", id).
		Delete(&models.StoryView{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&models.Story{}, id).Error
}

// RecordView inserts a view row, silently ignoring duplicates. The unique
// index on (story_id, viewer_id) makes repeat views a no-op at the storage
// layer, so the dedup holds under concurrent requests.
func (r *storyRepository) RecordView(ctx context.Context, storyID, viewerID uint) error {
	view := models.StoryView{StoryID: storyID, ViewerID: viewerID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&view).Error
}

func (r *storyRepository) GetViews(ctx context.Context, storyID uint) ([]*models.StoryView, error) {
	var views []*models.StoryView
	err := r.db.WithContext(ctx).
		Where("story_id = ?", storyID).
		Preload("Viewer").
		Order("viewed_at ASC").
		Find(&views).Error
	return views, err
}

func (r *storyRepository) ViewedStoryIDs(ctx context.Context, viewerID uint, storyIDs []uint) (map[uint]bool, error) {
	viewed := make(map[uint]bool, len(storyIDs))
	if len(storyIDs) == 0 {
		return viewed, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.StoryView{}).
		Where("viewer_id = ? AND story_id IN ?", viewerID, storyIDs).
		Pluck("story_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		viewed[id] = true
	}
	return viewed, nil
}

func (r *storyRepository) ExpiredActive(ctx context.Context, now time.Time) ([]*models.Story, error) {
	var stories []*models.Story
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND expires_at < ?", true, now).
		Find(&stories).Error
	return stories, err
}

// DeactivateExpired flips is_active to false for every expired story still
// marked active and returns the number of rows changed. Rows already
// inactive are excluded by the predicate, which makes repeated sweeps
// side-effect free.
func (r *storyRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.metrics.TrackQuery("deactivate_expired", "stories")()
	res := r.db.WithContext(ctx).Model(&models.Story{}).
		Where("is_active = ? AND expires_at < ?", true, now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
