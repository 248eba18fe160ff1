// Command sweep runs a single story-expiry pass and exits. Useful for
// cron-style deployments where the in-process sweeper is not wanted.
package main

import (
	"context"
	"log"
	"time"

	"momoland/internal/config"
	"momoland/internal/database"
	"momoland/internal/repository"
	"momoland/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	svc := service.NewStoryService(
		repository.NewStoryRepository(db),
		repository.NewUserRepository(db),
		cfg,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	deactivated, err := svc.Sweep(ctx)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
	log.Printf("Sweep complete: %d stories deactivated", deactivated)
}
