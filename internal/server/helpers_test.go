package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"momoland/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"messageId", "message ID"},
		{"roomId", "room ID"},
		{"someLongNameId", "some long name ID"},
		{"weird", "weird"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, humanizeParam(tt.param))
	}
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	var got Pagination
	app.Get("/", func(c *fiber.Ctx) error {
		got = parsePagination(c, 20)
		return c.SendStatus(http.StatusOK)
	})

	tests := []struct {
		query    string
		expected Pagination
	}{
		{"", Pagination{Limit: 20, Offset: 0}},
		{"?limit=5&offset=10", Pagination{Limit: 5, Offset: 10}},
		{"?limit=0", Pagination{Limit: 20, Offset: 0}},
		{"?limit=9999", Pagination{Limit: maxPaginationLimit, Offset: 0}},
		{"?offset=-3", Pagination{Limit: 20, Offset: 0}},
		{"?limit=abc", Pagination{Limit: 20, Offset: 0}},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, tt.expected, got, "query %q", tt.query)
	}
}

func TestParseID(t *testing.T) {
	s := &Server{}
	app := fiber.New()
	app.Get("/things/:id", func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	tests := []struct {
		path           string
		expectedStatus int
	}{
		{"/things/7", http.StatusOK},
		{"/things/0", http.StatusBadRequest},
		{"/things/-2", http.StatusBadRequest},
		{"/things/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, tt.expectedStatus, resp.StatusCode, "path %s", tt.path)
	}
}

func TestRespondAppError(t *testing.T) {
	app := fiber.New()
	app.Get("/err/:kind", func(c *fiber.Ctx) error {
		switch c.Params("kind") {
		case "notfound":
			return respondAppError(c, models.NewNotFoundError("Thing", 1))
		case "validation":
			return respondAppError(c, models.NewValidationError("bad input"))
		case "forbidden":
			return respondAppError(c, models.NewForbiddenError("no"))
		case "conflict":
			return respondAppError(c, models.NewConflictError("taken"))
		default:
			return respondAppError(c, assert.AnError)
		}
	})

	tests := []struct {
		kind           string
		expectedStatus int
	}{
		{"notfound", http.StatusNotFound},
		{"validation", http.StatusBadRequest},
		{"forbidden", http.StatusForbidden},
		{"conflict", http.StatusConflict},
		{"other", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/err/"+tt.kind, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, tt.expectedStatus, resp.StatusCode, "kind %s", tt.kind)
	}
}
