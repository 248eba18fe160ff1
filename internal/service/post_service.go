package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"momoland/internal/models"
	"momoland/internal/notifications"
	"momoland/internal/repository"

	"gorm.io/gorm"
)

const (
	maxPostTitleLen   = 200
	maxPostContentLen = 20000
	maxCommentLen     = 5000
)

// PostService provides feed post and comment business logic.
type PostService struct {
	repo     repository.PostRepository
	notifier *notifications.Notifier
}

// NewPostService returns a new PostService.
func NewPostService(repo repository.PostRepository, notifier *notifications.Notifier) *PostService {
	return &PostService{repo: repo, notifier: notifier}
}

// Create publishes a post and announces it on the feed topic.
func (s *PostService) Create(ctx context.Context, userID uint, title, content string) (*models.Post, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, models.NewValidationError("Post title is required")
	}
	if len(title) > maxPostTitleLen {
		return nil, models.NewValidationError(fmt.Sprintf("Post title too long (max %d characters)", maxPostTitleLen))
	}
	if content == "" {
		return nil, models.NewValidationError("Post content is required")
	}
	if len(content) > maxPostContentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Post content too long (max %d characters)", maxPostContentLen))
	}

	post := &models.Post{Title: title, Content: content, UserID: userID}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, models.NewInternalError(err)
	}

	s.publishFeed(ctx, notifications.FeedEvent{Type: "new-post", PostID: post.ID, UserID: userID})
	return post, nil
}

// GetAll returns posts newest first.
func (s *PostService) GetAll(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	posts, err := s.repo.GetAll(ctx, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// Get returns a single post.
func (s *PostService) Get(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := s.repo.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, models.NewInternalError(err)
	}
	return post, nil
}

// Update edits a post, author only.
func (s *PostService) Update(ctx context.Context, postID, userID uint, title, content string) (*models.Post, error) {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}
	if title = strings.TrimSpace(title); title != "" {
		post.Title = title
	}
	if content = strings.TrimSpace(content); content != "" {
		post.Content = content
	}
	if err := s.repo.Update(ctx, post); err != nil {
		return nil, models.NewInternalError(err)
	}

	s.publishPost(ctx, post.ID, notifications.FeedEvent{Type: "post-updated", PostID: post.ID, UserID: userID})
	return post, nil
}

// Delete removes a post, author or moderator only.
func (s *PostService) Delete(ctx context.Context, postID, userID uint, isModerator bool) error {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != userID && !isModerator {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	if err := s.repo.Delete(ctx, postID); err != nil {
		return models.NewInternalError(err)
	}

	s.publishFeed(ctx, notifications.FeedEvent{Type: "post-deleted", PostID: postID, UserID: userID})
	return nil
}

// AddComment comments on a post and announces it on the post's topic.
func (s *PostService) AddComment(ctx context.Context, postID, userID uint, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Comment content is required")
	}
	if len(content) > maxCommentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Comment too long (max %d characters)", maxCommentLen))
	}
	if _, err := s.Get(ctx, postID); err != nil {
		return nil, err
	}

	comment := &models.Comment{PostID: postID, UserID: userID, Content: content}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, models.NewInternalError(err)
	}

	s.publishPost(ctx, postID, notifications.FeedEvent{Type: "new-comment", PostID: postID, UserID: userID, Payload: comment})
	return comment, nil
}

// GetComments returns a post's comments oldest first.
func (s *PostService) GetComments(ctx context.Context, postID uint, limit, offset int) ([]*models.Comment, error) {
	comments, err := s.repo.GetComments(ctx, postID, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

// DeleteComment removes a comment, commenter or moderator only.
func (s *PostService) DeleteComment(ctx context.Context, commentID, userID uint, isModerator bool) error {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Comment", commentID)
		}
		return models.NewInternalError(err)
	}
	if comment.UserID != userID && !isModerator {
		return models.NewForbiddenError("You can only delete your own comments")
	}
	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *PostService) publishFeed(ctx context.Context, event notifications.FeedEvent) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal feed event", "error", err)
		return
	}
	if err := s.notifier.PublishFeedEvent(ctx, string(payload)); err != nil {
		slog.Warn("failed to publish feed event", "type", event.Type, "error", err)
	}
}

func (s *PostService) publishPost(ctx context.Context, postID uint, event notifications.FeedEvent) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal post event", "post_id", postID, "error", err)
		return
	}
	if err := s.notifier.PublishPostEvent(ctx, postID, string(payload)); err != nil {
		slog.Warn("failed to publish post event", "post_id", postID, "type", event.Type, "error", err)
	}
}
