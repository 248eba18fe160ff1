package server

import (
	"encoding/json"
	"io"

	"momoland/internal/models"
	"momoland/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateStory handles POST /api/stories
func (s *Server) CreateStory(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		Content         string          `json:"content"`
		MediaURL        string          `json:"media_url"`
		MediaType       string          `json:"media_type"`
		Duration        int             `json:"duration"`
		BackgroundColor string          `json:"background_color"`
		TextColor       string          `json:"text_color"`
		FontSize        int             `json:"font_size"`
		FontStyle       string          `json:"font_style"`
		Stickers        json.RawMessage `json:"stickers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	story, err := s.storyService.Create(c.UserContext(), service.CreateStoryInput{
		AuthorID:        userID,
		Content:         req.Content,
		MediaURL:        req.MediaURL,
		MediaType:       req.MediaType,
		Duration:        req.Duration,
		BackgroundColor: req.BackgroundColor,
		TextColor:       req.TextColor,
		FontSize:        req.FontSize,
		FontStyle:       req.FontStyle,
		Stickers:        req.Stickers,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(story)
}

// UploadStoryMedia handles POST /api/stories/media
func (s *Server) UploadStoryMedia(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("No file uploaded"))
	}

	f, err := fileHeader.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(f)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	url, err := s.storyService.SaveMedia(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), content)
	if err != nil {
		return respondAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"media_url": url})
}

// GetStoryFeed handles GET /api/stories/feed
func (s *Server) GetStoryFeed(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	feed, err := s.storyService.Feed(c.UserContext(), userID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"feed": feed})
}

// GetUserStories handles GET /api/stories/user/:id
func (s *Server) GetUserStories(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	authorID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	stories, err := s.storyService.ByAuthor(c.UserContext(), authorID, userID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"stories": stories})
}

// GetStory handles GET /api/stories/:id
func (s *Server) GetStory(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	storyID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	story, err := s.storyService.Get(c.UserContext(), storyID, userID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(story)
}

// MarkStoryViewed handles POST /api/stories/:id/view
func (s *Server) MarkStoryViewed(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	storyID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.storyService.MarkViewed(c.UserContext(), storyID, userID); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "View recorded"})
}

// GetStoryViews handles GET /api/stories/:id/views
func (s *Server) GetStoryViews(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	storyID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	views, err := s.storyService.Views(c.UserContext(), storyID, userID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"views": views,
		"count": len(views),
	})
}

// DeleteStory handles DELETE /api/stories/:id
func (s *Server) DeleteStory(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	storyID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	isModerator := s.canModerate(c, userID, models.PermModerateStories)
	if err := s.storyService.Delete(c.UserContext(), storyID, userID, isModerator); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Story deleted"})
}

// RunStoryCleanup handles POST /api/stories/cleanup
func (s *Server) RunStoryCleanup(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	count, err := s.adminService.RunStorySweep(c.UserContext(), userID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"deactivated": count})
}
