package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"momoland/internal/models"
	"momoland/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdminService provides role and permission management, audit logging, and
// the admin moderation surface.
type AdminService struct {
	db       *gorm.DB
	userRepo repository.UserRepository
	chat     *ChatService
	stories  *StoryService
}

// NewAdminService returns a new AdminService.
func NewAdminService(db *gorm.DB, userRepo repository.UserRepository, chat *ChatService, stories *StoryService) *AdminService {
	return &AdminService{db: db, userRepo: userRepo, chat: chat, stories: stories}
}

// CreateRoleInput is the input for creating or updating a role.
type CreateRoleInput struct {
	Name            string
	Description     string
	PermissionCodes []string
}

// HasPermission reports whether the user holds the given permission, either
// through the legacy admin flag or an assigned role.
func (s *AdminService) HasPermission(ctx context.Context, userID uint, code string) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, models.NewInternalError(err)
	}
	if user.IsAdmin {
		return true, nil
	}
	if user.Role == nil {
		return false, nil
	}
	return user.Role.HasPermission(code), nil
}

// EnsurePermissions upserts the well-known permission codes. Run at startup
// so role editing always has the full catalog to draw from.
func (s *AdminService) EnsurePermissions(ctx context.Context) error {
	catalog := []models.Permission{
		{Code: models.PermManageRoles, Description: "Create, edit, and assign roles"},
		{Code: models.PermModerateRooms, Description: "Ban users, delete messages, and close rooms"},
		{Code: models.PermModerateStories, Description: "Delete stories and trigger cleanup sweeps"},
		{Code: models.PermViewAuditLog, Description: "Read the admin audit log"},
	}
	for i := range catalog {
		if err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
			Create(&catalog[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// CreateRole creates a role with the given permission codes.
func (s *AdminService) CreateRole(ctx context.Context, actorID uint, in CreateRoleInput) (*models.Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.NewValidationError("Role name is required")
	}

	perms, err := s.permissionsByCode(ctx, in.PermissionCodes)
	if err != nil {
		return nil, err
	}

	role := &models.Role{Name: name, Description: in.Description, Permissions: perms}
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.NewConflictError("A role with this name already exists")
		}
		return nil, models.NewInternalError(err)
	}

	s.audit(ctx, actorID, "role.create", "role", role.ID, fmt.Sprintf("name=%s perms=%s", name, strings.Join(in.PermissionCodes, ",")))
	return role, nil
}

// UpdateRole replaces a role's description and permission set.
func (s *AdminService) UpdateRole(ctx context.Context, actorID, roleID uint, in CreateRoleInput) (*models.Role, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	perms, err := s.permissionsByCode(ctx, in.PermissionCodes)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		role.Name = name
	}
	role.Description = in.Description
	if err := s.db.WithContext(ctx).Save(role).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.db.WithContext(ctx).Model(role).Association("Permissions").Replace(perms); err != nil {
		return nil, models.NewInternalError(err)
	}
	role.Permissions = perms

	s.audit(ctx, actorID, "role.update", "role", role.ID, fmt.Sprintf("perms=%s", strings.Join(in.PermissionCodes, ",")))
	return role, nil
}

// DeleteRole removes a role and detaches it from every user holding it.
func (s *AdminService) DeleteRole(ctx context.Context, actorID, roleID uint) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("role_id = ?", roleID).Update("role_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(role).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}

	s.audit(ctx, actorID, "role.delete", "role", roleID, "name="+role.Name)
	return nil
}

// GetRole returns a role with its permissions.
func (s *AdminService) GetRole(ctx context.Context, roleID uint) (*models.Role, error) {
	var role models.Role
	err := s.db.WithContext(ctx).Preload("Permissions").First(&role, roleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Role", roleID)
		}
		return nil, models.NewInternalError(err)
	}
	return &role, nil
}

// GetRoles lists all roles.
func (s *AdminService) GetRoles(ctx context.Context) ([]*models.Role, error) {
	var roles []*models.Role
	if err := s.db.WithContext(ctx).Preload("Permissions").Order("name ASC").Find(&roles).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return roles, nil
}

// GetPermissions lists the permission catalog.
func (s *AdminService) GetPermissions(ctx context.Context) ([]*models.Permission, error) {
	var perms []*models.Permission
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&perms).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return perms, nil
}

// AssignRole sets (or with roleID nil, clears) a user's role.
func (s *AdminService) AssignRole(ctx context.Context, actorID, userID uint, roleID *uint) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("User", userID)
		}
		return models.NewInternalError(err)
	}
	if roleID != nil {
		if _, err := s.GetRole(ctx, *roleID); err != nil {
			return err
		}
	}
	if err := s.userRepo.SetRole(ctx, userID, roleID); err != nil {
		return models.NewInternalError(err)
	}

	detail := "cleared"
	if roleID != nil {
		detail = fmt.Sprintf("role_id=%d", *roleID)
	}
	s.audit(ctx, actorID, "role.assign", "user", userID, detail)
	return nil
}

// ForceCloseRoom closes any room regardless of ownership.
func (s *AdminService) ForceCloseRoom(ctx context.Context, actorID, roomID uint, reason string) error {
	if err := s.chat.CloseRoom(ctx, roomID, actorID, true); err != nil {
		return err
	}
	s.audit(ctx, actorID, "room.force_close", "room", roomID, reason)
	return nil
}

// DeleteStory removes any user's story through the moderation surface.
func (s *AdminService) DeleteStory(ctx context.Context, actorID, storyID uint, reason string) error {
	if err := s.stories.Delete(ctx, storyID, actorID, true); err != nil {
		return err
	}
	s.audit(ctx, actorID, "story.delete", "story", storyID, reason)
	return nil
}

// RunStorySweep triggers an immediate cleanup sweep.
func (s *AdminService) RunStorySweep(ctx context.Context, actorID uint) (int64, error) {
	count, err := s.stories.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, actorID, "story.sweep", "story", 0, fmt.Sprintf("deactivated=%d", count))
	return count, nil
}

// GetAuditLog returns audit entries newest first.
func (s *AdminService) GetAuditLog(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []*models.AuditLog
	err := s.db.WithContext(ctx).
		Preload("Actor").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (s *AdminService) permissionsByCode(ctx context.Context, codes []string) ([]models.Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var perms []models.Permission
	if err := s.db.WithContext(ctx).Where("code IN ?", codes).Find(&perms).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(perms) != len(codes) {
		return nil, models.NewValidationError("Unknown permission code")
	}
	return perms, nil
}

// audit writes an audit row. Failures are logged, never surfaced; the action
// itself has already happened.
func (s *AdminService) audit(ctx context.Context, actorID uint, action, targetType string, targetID uint, detail string) {
	entry := &models.AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		slog.Error("failed to write audit log", "action", action, "actor_id", actorID, "error", err)
	}
}
