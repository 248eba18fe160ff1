package server

import (
	"momoland/internal/models"
	"momoland/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetRoles handles GET /api/admin/roles
func (s *Server) GetRoles(c *fiber.Ctx) error {
	roles, err := s.adminService.GetRoles(c.UserContext())
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"roles": roles})
}

// CreateRole handles POST /api/admin/roles
func (s *Server) CreateRole(c *fiber.Ctx) error {
	actorID := c.Locals("userID").(uint)

	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Permissions []string `json:"permissions"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	role, err := s.adminService.CreateRole(c.UserContext(), actorID, service.CreateRoleInput{
		Name:            req.Name,
		Description:     req.Description,
		PermissionCodes: req.Permissions,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(role)
}

// UpdateRole handles PUT /api/admin/roles/:id
func (s *Server) UpdateRole(c *fiber.Ctx) error {
	actorID := c.Locals("userID").(uint)
	roleID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Permissions []string `json:"permissions"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	role, err := s.adminService.UpdateRole(c.UserContext(), actorID, roleID, service.CreateRoleInput{
		Name:            req.Name,
		Description:     req.Description,
		PermissionCodes: req.Permissions,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(role)
}

// DeleteRole handles DELETE /api/admin/roles/:id
func (s *Server) DeleteRole(c *fiber.Ctx) error {
	actorID := c.Locals("userID").(uint)
	roleID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.adminService.DeleteRole(c.UserContext(), actorID, roleID); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Role deleted"})
}

// GetPermissions handles GET /api/admin/permissions
func (s *Server) GetPermissions(c *fiber.Ctx) error {
	perms, err := s.adminService.GetPermissions(c.UserContext())
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"permissions": perms})
}

// AssignRole handles PUT /api/admin/users/:id/role
func (s *Server) AssignRole(c *fiber.Ctx) error {
	actorID := c.Locals("userID").(uint)
	userID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		RoleID *uint `json:"role_id"` // null clears the role
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.adminService.AssignRole(c.UserContext(), actorID, userID, req.RoleID); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Role assigned"})
}

// ForceCloseRoom handles POST /api/admin/rooms/:id/close
func (s *Server) ForceCloseRoom(c *fiber.Ctx) error {
	actorID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.adminService.ForceCloseRoom(c.UserContext(), actorID, roomID, req.Reason); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Room closed"})
}

// AdminDeleteStory handles DELETE /api/admin/stories/:id
func (s *Server) AdminDeleteStory(c *fiber.Ctx) error {
	actorID := c.Locals("userID").(uint)
	storyID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.adminService.DeleteStory(c.UserContext(), actorID, storyID, req.Reason); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Story deleted"})
}

// GetAuditLog handles GET /api/admin/audit-log
func (s *Server) GetAuditLog(c *fiber.Ctx) error {
	p := parsePagination(c, 50)

	entries, err := s.adminService.GetAuditLog(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"entries": entries})
}
