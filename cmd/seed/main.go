// Command seed populates the database with development data.
package main

import (
	"flag"
	"log"

	"momoland/internal/config"
	"momoland/internal/database"
	"momoland/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Env == "production" || cfg.Env == "prod" {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Printf("Seeding %d users with stories, rooms and posts...", *numUsers)
	if err := seed.Run(db, *numUsers); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Done. All seeded accounts use password %q", seed.DefaultSeedPassword)
}
