// Package bootstrap wires runtime dependencies (database, Redis, baseline
// data) for the cmd entry points.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"momoland/internal/cache"
	"momoland/internal/config"
	"momoland/internal/database"
	"momoland/internal/models"
	"momoland/internal/observability"
	"momoland/internal/repository"
	"momoland/internal/service"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// InitRuntime installs the tracer provider, connects to the database and
// Redis, ensures the permission catalog, and bootstraps a development root
// admin when configured. The returned shutdown function flushes tracing and
// must be called during graceful shutdown.
func InitRuntime(cfg *config.Config) (*gorm.DB, *redis.Client, func(context.Context) error, error) {
	stopTracing, err := observability.InitTracing(tracingConfig(cfg))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tracing initialization failed: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// May yield a nil client if Redis is unreachable; the server degrades to
	// HTTP-only in that case.
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	admin := service.NewAdminService(db, repository.NewUserRepository(db), nil, nil)
	if err := admin.EnsurePermissions(context.Background()); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to ensure permission catalog: %w", err)
	}

	if err := ensureDevRootAdmin(cfg, db); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	return db, r, stopTracing, nil
}

// tracingConfig maps runtime configuration onto the tracer setup.
func tracingConfig(cfg *config.Config) observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    "momoland-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TraceExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   1.0,
	}
}

// ensureDevRootAdmin guarantees user ID 1 exists as an admin in development.
// A password must be supplied explicitly; there is no baked-in default.
func ensureDevRootAdmin(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || cfg.DevRootPass == "" {
		return nil
	}

	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = "root@momoland.local"
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPass), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		var root models.User
		findErr := tx.First(&root, 1).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			root = models.User{
				ID:       1,
				Username: "momoland_root",
				Email:    email,
				Password: string(hashedPassword),
				IsAdmin:  true,
			}
			if err := tx.Create(&root).Error; err != nil {
				return err
			}
		case findErr != nil:
			return findErr
		default:
			if err := tx.Model(&models.User{}).Where("id = ?", 1).Update("is_admin", true).Error; err != nil {
				return err
			}
		}

		// Keep the users ID sequence ahead of the explicit ID insert.
		// PostgreSQL-specific.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(`
				SELECT setval(
					pg_get_serial_sequence('users', 'id'),
					GREATEST((SELECT COALESCE(MAX(id), 1) FROM users), 1),
					true
				)
			`).Error; err != nil {
				return fmt.Errorf("failed to reset users sequence: %w", err)
			}
		}

		return nil
	}); err != nil {
		return err
	}

	log.Printf("development root admin bootstrap ensured for user ID 1 (%s)", email)
	return nil
}
