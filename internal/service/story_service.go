// Package service provides application business logic (stories, rooms, posts, admin).
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"momoland/internal/config"
	"momoland/internal/middleware"
	"momoland/internal/models"
	"momoland/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultStoryUploadDir = "uploads"
	DefaultSweepInterval  = time.Hour
	maxStoryContentLen    = 2000
	maxStoryMediaSizeMB   = 25
	maxStoryDurationSecs  = 30
)

// CreateStoryInput is the input for publishing a story.
type CreateStoryInput struct {
	AuthorID        uint
	Content         string
	MediaURL        string
	MediaType       string
	Duration        int
	BackgroundColor string
	TextColor       string
	FontSize        int
	FontStyle       string
	Stickers        json.RawMessage
}

// StoryResponse is a story decorated with viewer-specific state.
type StoryResponse struct {
	*models.Story
	HasViewed  bool `json:"has_viewed"`
	ViewsCount int  `json:"views_count"`
}

// AuthorFeed groups a feed author's active stories, oldest first.
type AuthorFeed struct {
	Author    models.UserSummary `json:"author"`
	Stories   []*StoryResponse   `json:"stories"`
	AllViewed bool               `json:"all_viewed"`
}

// StoryService provides story lifecycle business logic: creation, the
// follower feed, view tracking, and the expiry sweep.
type StoryService struct {
	repo      repository.StoryRepository
	userRepo  repository.UserRepository
	uploadDir string
	sweepEach time.Duration
	now       func() time.Time
	sweepOnce sync.Once
}

// NewStoryService returns a new StoryService.
func NewStoryService(repo repository.StoryRepository, userRepo repository.UserRepository, cfg *config.Config) *StoryService {
	uploadDir := DefaultStoryUploadDir
	sweepEach := DefaultSweepInterval
	if cfg != nil {
		if cfg.UploadDir != "" {
			uploadDir = cfg.UploadDir
		}
		sweepEach = cfg.StorySweepInterval()
	}
	return &StoryService{
		repo:      repo,
		userRepo:  userRepo,
		uploadDir: uploadDir,
		sweepEach: sweepEach,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create publishes a story. ExpiresAt is stamped once here and never updated.
func (s *StoryService) Create(ctx context.Context, in CreateStoryInput) (*models.Story, error) {
	if in.AuthorID == 0 {
		return nil, models.NewValidationError("Invalid user")
	}
	if in.Content == "" && in.MediaURL == "" {
		return nil, models.NewValidationError("Story must have content or media")
	}
	if len(in.Content) > maxStoryContentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Story content too long (max %d characters)", maxStoryContentLen))
	}

	mediaType := strings.ToUpper(strings.TrimSpace(in.MediaType))
	switch mediaType {
	case "":
		mediaType = models.StoryMediaText
	case models.StoryMediaText, models.StoryMediaImage, models.StoryMediaVideo:
	default:
		return nil, models.NewValidationError("Invalid media type")
	}
	if mediaType != models.StoryMediaText && in.MediaURL == "" {
		return nil, models.NewValidationError("Media stories require a media URL")
	}

	duration := in.Duration
	if duration <= 0 {
		duration = models.DefaultStoryDuration
	}
	if duration > maxStoryDurationSecs {
		return nil, models.NewValidationError(fmt.Sprintf("Story duration too long (max %d seconds)", maxStoryDurationSecs))
	}

	if in.Stickers != nil {
		var stickers []models.StorySticker
		if err := json.Unmarshal(in.Stickers, &stickers); err != nil {
			return nil, models.NewValidationError("Invalid stickers payload")
		}
	}

	now := s.now()
	story := &models.Story{
		AuthorID:        in.AuthorID,
		Content:         in.Content,
		MediaURL:        in.MediaURL,
		MediaType:       mediaType,
		Duration:        duration,
		BackgroundColor: in.BackgroundColor,
		TextColor:       in.TextColor,
		FontSize:        in.FontSize,
		FontStyle:       in.FontStyle,
		Stickers:        in.Stickers,
		CreatedAt:       now,
		ExpiresAt:       now.Add(models.StoryTTL),
		IsActive:        true,
	}
	if err := s.repo.Create(ctx, story); err != nil {
		return nil, models.NewInternalError(err)
	}
	return story, nil
}

// SaveMedia stores an uploaded media file under the upload directory and
// returns its serving URL. Filenames are random so uploads never collide.
func (s *StoryService) SaveMedia(filename, contentType string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", models.NewValidationError("No file uploaded")
	}
	if int64(len(content)) > maxStoryMediaSizeMB*1024*1024 {
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", maxStoryMediaSizeMB))
	}

	detected := http.DetectContentType(content)
	if !strings.HasPrefix(detected, "image/") && !strings.HasPrefix(detected, "video/") {
		return "", models.NewValidationError("Unsupported media type")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, "/\\") {
		ext = ".bin"
	}
	name := uuid.New().String() + ext
	dir := filepath.Join(s.uploadDir, "stories")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o600); err != nil {
		return "", models.NewInternalError(err)
	}
	return "/media/stories/" + name, nil
}

// MediaRoot returns the directory uploaded media is served from.
func (s *StoryService) MediaRoot() string {
	return s.uploadDir
}

// MediaPath resolves a story media URL back to its path on disk. Returns an
// error for URLs that do not point into the stories upload directory.
func (s *StoryService) MediaPath(mediaURL string) (string, error) {
	name := strings.TrimPrefix(mediaURL, "/media/stories/")
	if name == mediaURL || name == "" || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("not a managed media URL: %s", mediaURL)
	}
	return filepath.Join(s.uploadDir, "stories", name), nil
}

// Get returns a story by ID if it is still visible. Expired or deactivated
// stories read back as not found for everyone but the author.
func (s *StoryService) Get(ctx context.Context, storyID, viewerID uint) (*StoryResponse, error) {
	story, err := s.repo.GetByID(ctx, storyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Story", storyID)
		}
		return nil, models.NewInternalError(err)
	}
	now := s.now()
	if (!story.IsActive || story.IsExpired(now)) && story.AuthorID != viewerID {
		return nil, models.NewNotFoundError("Story", storyID)
	}

	viewed, err := s.repo.ViewedStoryIDs(ctx, viewerID, []uint{story.ID})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &StoryResponse{
		Story:      story,
		HasViewed:  viewed[story.ID],
		ViewsCount: len(story.Views),
	}, nil
}

// Feed returns the viewer's story feed: active stories from followed authors
// (plus the viewer's own), grouped per author with stories oldest first.
func (s *StoryService) Feed(ctx context.Context, viewerID uint) ([]*AuthorFeed, error) {
	followed, err := s.userRepo.FollowedIDs(ctx, viewerID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	authorIDs := append(followed, viewerID)

	stories, err := s.repo.ActiveByAuthors(ctx, authorIDs, s.now())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(stories) == 0 {
		return []*AuthorFeed{}, nil
	}

	storyIDs := make([]uint, len(stories))
	for i, st := range stories {
		storyIDs[i] = st.ID
	}
	viewed, err := s.repo.ViewedStoryIDs(ctx, viewerID, storyIDs)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	var feed []*AuthorFeed
	byAuthor := make(map[uint]*AuthorFeed)
	for _, st := range stories {
		group, ok := byAuthor[st.AuthorID]
		if !ok {
			group = &AuthorFeed{AllViewed: true}
			if st.Author != nil {
				group.Author = st.Author.Summary()
			} else {
				group.Author = models.UserSummary{ID: st.AuthorID}
			}
			byAuthor[st.AuthorID] = group
			feed = append(feed, group)
		}
		hasViewed := viewed[st.ID] || st.AuthorID == viewerID
		if !hasViewed {
			group.AllViewed = false
		}
		group.Stories = append(group.Stories, &StoryResponse{
			Story:      st,
			HasViewed:  hasViewed,
			ViewsCount: len(st.Views),
		})
	}
	return feed, nil
}

// ByAuthor returns an author's active stories oldest first, and records a
// view for each one on behalf of the viewer. Authors viewing their own
// stories never produce view rows.
func (s *StoryService) ByAuthor(ctx context.Context, authorID, viewerID uint) ([]*StoryResponse, error) {
	stories, err := s.repo.ActiveByAuthor(ctx, authorID, s.now())
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	storyIDs := make([]uint, len(stories))
	for i, st := range stories {
		storyIDs[i] = st.ID
	}
	viewed := map[uint]bool{}
	if len(storyIDs) > 0 {
		viewed, err = s.repo.ViewedStoryIDs(ctx, viewerID, storyIDs)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
	}

	result := make([]*StoryResponse, 0, len(stories))
	for _, st := range stories {
		hasViewed := viewed[st.ID]
		if authorID != viewerID {
			if err := s.repo.RecordView(ctx, st.ID, viewerID); err != nil {
				slog.Warn("failed to record story view", "story_id", st.ID, "viewer_id", viewerID, "error", err)
			} else {
				hasViewed = true
			}
		}
		result = append(result, &StoryResponse{
			Story:      st,
			HasViewed:  hasViewed || authorID == viewerID,
			ViewsCount: len(st.Views),
		})
	}
	return result, nil
}

// MarkViewed records that the viewer has seen a story. Recording is
// idempotent; repeat views are absorbed by the unique (story, viewer) index.
func (s *StoryService) MarkViewed(ctx context.Context, storyID, viewerID uint) error {
	story, err := s.repo.GetByID(ctx, storyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Story", storyID)
		}
		return models.NewInternalError(err)
	}
	if !story.IsActive || story.IsExpired(s.now()) {
		return models.NewNotFoundError("Story", storyID)
	}
	if story.AuthorID == viewerID {
		return nil
	}
	if err := s.repo.RecordView(ctx, storyID, viewerID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Views returns the viewer list for a story. Only the author may see it.
func (s *StoryService) Views(ctx context.Context, storyID, requesterID uint) ([]*models.StoryView, error) {
	story, err := s.repo.GetByID(ctx, storyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Story", storyID)
		}
		return nil, models.NewInternalError(err)
	}
	if story.AuthorID != requesterID {
		return nil, models.NewForbiddenError("Only the author can see story views")
	}
	views, err := s.repo.GetViews(ctx, storyID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return views, nil
}

// Delete removes a story. Only the author (or a moderator via the admin
// surface) may delete; media files are removed best-effort.
func (s *StoryService) Delete(ctx context.Context, storyID, requesterID uint, isModerator bool) error {
	story, err := s.repo.GetByID(ctx, storyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Story", storyID)
		}
		return models.NewInternalError(err)
	}
	if story.AuthorID != requesterID && !isModerator {
		return models.NewForbiddenError("You can only delete your own stories")
	}
	if err := s.repo.Delete(ctx, storyID); err != nil {
		return models.NewInternalError(err)
	}
	s.removeMedia(story)
	return nil
}

func (s *StoryService) removeMedia(story *models.Story) {
	if story.MediaURL == "" {
		return
	}
	path, err := s.MediaPath(story.MediaURL)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove story media", "story_id", story.ID, "path", path, "error", err)
	}
}

// Sweep retires every expired story that is still marked active, removing
// associated media files. It returns the number of stories deactivated.
// Sweeping is idempotent: a story is only flipped inactive once, and a sweep
// over an already-clean table is a no-op.
func (s *StoryService) Sweep(ctx context.Context) (int64, error) {
	now := s.now()

	expired, err := s.repo.ExpiredActive(ctx, now)
	if err != nil {
		middleware.StorySweepRuns.WithLabelValues("error").Inc()
		return 0, models.NewInternalError(err)
	}

	count, err := s.repo.DeactivateExpired(ctx, now)
	if err != nil {
		middleware.StorySweepRuns.WithLabelValues("error").Inc()
		return 0, models.NewInternalError(err)
	}

	// Media removal is best-effort; a failed unlink never aborts the sweep.
	for _, st := range expired {
		s.removeMedia(st)
	}

	middleware.StorySweepRuns.WithLabelValues("ok").Inc()
	middleware.StoriesDeactivated.Add(float64(count))
	if count > 0 {
		slog.Info("story sweep retired expired stories", "count", count)
	}
	return count, nil
}

// StartSweeper runs the expiry sweep on a fixed cadence until the context is
// cancelled. Safe to call more than once; only the first call starts the loop.
func (s *StoryService) StartSweeper(ctx context.Context) {
	if s.repo == nil {
		return
	}
	s.sweepOnce.Do(func() {
		go s.sweepLoop(ctx)
	})
}

func (s *StoryService) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEach)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("story sweep failed", "error", err)
			}
		}
	}
}
