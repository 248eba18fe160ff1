package service

import (
	"context"
	"testing"

	"momoland/internal/models"
	"momoland/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newAdminTestService(t *testing.T) (*AdminService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Role{}, &models.Permission{}, &models.AuditLog{},
		&models.ChatRoom{}, &models.RoomMember{}, &models.ChatMessage{}, &models.RoomBan{},
		&models.Story{}, &models.StoryView{}, &models.Follow{},
	))

	userRepo := repository.NewUserRepository(db)
	chat := NewChatService(repository.NewChatRepository(db), userRepo, db, nil)
	stories := NewStoryService(repository.NewStoryRepository(db), userRepo, nil)
	stories.uploadDir = t.TempDir()

	svc := NewAdminService(db, userRepo, chat, stories)
	require.NoError(t, svc.EnsurePermissions(context.Background()))
	return svc, db
}

func TestAdminService_EnsurePermissionsIdempotent(t *testing.T) {
	svc, db := newAdminTestService(t)

	// Setup already ran it once; run again
	require.NoError(t, svc.EnsurePermissions(context.Background()))

	var count int64
	db.Model(&models.Permission{}).Count(&count)
	assert.Equal(t, int64(4), count)
}

func TestAdminService_RoleLifecycle(t *testing.T) {
	svc, db := newAdminTestService(t)
	ctx := context.Background()

	admin := &models.User{Username: "admin", Email: "admin@e.com", Password: "x", IsAdmin: true}
	mod := &models.User{Username: "mod", Email: "mod@e.com", Password: "x"}
	db.Create(admin)
	db.Create(mod)

	t.Run("Unknown permission code rejected", func(t *testing.T) {
		_, err := svc.CreateRole(ctx, admin.ID, CreateRoleInput{
			Name:            "bogus",
			PermissionCodes: []string{"no.such.thing"},
		})
		require.Error(t, err)
		assert.Equal(t, "VALIDATION_ERROR", err.(*models.AppError).Code)
	})

	role, err := svc.CreateRole(ctx, admin.ID, CreateRoleInput{
		Name:            "Moderator",
		Description:     "Room moderation",
		PermissionCodes: []string{models.PermModerateRooms},
	})
	require.NoError(t, err)
	require.Len(t, role.Permissions, 1)

	t.Run("Assign grants permission", func(t *testing.T) {
		ok, err := svc.HasPermission(ctx, mod.ID, models.PermModerateRooms)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, svc.AssignRole(ctx, admin.ID, mod.ID, &role.ID))

		ok, err = svc.HasPermission(ctx, mod.ID, models.PermModerateRooms)
		require.NoError(t, err)
		assert.True(t, ok)

		// But not other permissions
		ok, err = svc.HasPermission(ctx, mod.ID, models.PermManageRoles)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Admin flag short-circuits", func(t *testing.T) {
		ok, err := svc.HasPermission(ctx, admin.ID, models.PermManageRoles)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Update replaces permission set", func(t *testing.T) {
		updated, err := svc.UpdateRole(ctx, admin.ID, role.ID, CreateRoleInput{
			PermissionCodes: []string{models.PermModerateRooms, models.PermModerateStories},
		})
		require.NoError(t, err)
		assert.Len(t, updated.Permissions, 2)

		ok, err := svc.HasPermission(ctx, mod.ID, models.PermModerateStories)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Clear role", func(t *testing.T) {
		require.NoError(t, svc.AssignRole(ctx, admin.ID, mod.ID, nil))
		ok, err := svc.HasPermission(ctx, mod.ID, models.PermModerateRooms)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete detaches holders", func(t *testing.T) {
		require.NoError(t, svc.AssignRole(ctx, admin.ID, mod.ID, &role.ID))
		require.NoError(t, svc.DeleteRole(ctx, admin.ID, role.ID))

		var fresh models.User
		require.NoError(t, db.First(&fresh, mod.ID).Error)
		assert.Nil(t, fresh.RoleID)

		_, err := svc.GetRole(ctx, role.ID)
		require.Error(t, err)
		assert.Equal(t, "NOT_FOUND", err.(*models.AppError).Code)
	})

	t.Run("Actions are audited", func(t *testing.T) {
		entries, err := svc.GetAuditLog(ctx, 50, 0)
		require.NoError(t, err)
		require.NotEmpty(t, entries)

		actions := map[string]bool{}
		for _, e := range entries {
			actions[e.Action] = true
		}
		assert.True(t, actions["role.create"])
		assert.True(t, actions["role.assign"])
		assert.True(t, actions["role.delete"])
	})
}

func TestAdminService_ModerationSurface(t *testing.T) {
	svc, db := newAdminTestService(t)
	ctx := context.Background()

	admin := &models.User{Username: "staff", Email: "staff@e.com", Password: "x", IsAdmin: true}
	owner := &models.User{Username: "owner", Email: "owner@e.com", Password: "x"}
	db.Create(admin)
	db.Create(owner)

	room, err := svc.chat.CreateRoom(ctx, CreateRoomInput{CreatorID: owner.ID, Name: "rowdy"})
	require.NoError(t, err)
	story, err := svc.stories.Create(ctx, CreateStoryInput{AuthorID: owner.ID, Content: "spam"})
	require.NoError(t, err)

	t.Run("Force close ignores ownership", func(t *testing.T) {
		require.NoError(t, svc.ForceCloseRoom(ctx, admin.ID, room.ID, "rule violation"))

		var got models.ChatRoom
		require.NoError(t, db.First(&got, room.ID).Error)
		assert.Equal(t, models.RoomStatusClosed, got.Status)
	})

	t.Run("Delete story ignores ownership", func(t *testing.T) {
		require.NoError(t, svc.DeleteStory(ctx, admin.ID, story.ID, "reported"))

		var count int64
		db.Model(&models.Story{}).Where("id = ?", story.ID).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("Manual sweep is audited", func(t *testing.T) {
		count, err := svc.RunStorySweep(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		entries, err := svc.GetAuditLog(ctx, 10, 0)
		require.NoError(t, err)
		found := false
		for _, e := range entries {
			if e.Action == "story.sweep" {
				found = true
			}
		}
		assert.True(t, found)
	})
}
