// Command migrate applies the Gorm schema for every registered model.
// Production deployments run this explicitly; non-production environments
// auto-migrate on connect.
package main

import (
	"flag"
	"log"

	"momoland/internal/config"
	"momoland/internal/database"
)

func main() {
	dropFirst := flag.Bool("drop", false, "Drop all tables before migrating (destructive)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	models := database.AllModels()

	if *dropFirst {
		if cfg.Env == "production" || cfg.Env == "prod" {
			log.Fatal("Refusing to drop tables in production")
		}
		// Drop in reverse dependency order so foreign keys do not block.
		for i := len(models) - 1; i >= 0; i-- {
			if err := db.Migrator().DropTable(models[i]); err != nil {
				log.Fatalf("Failed to drop table for %T: %v", models[i], err)
			}
		}
		log.Println("Dropped all tables")
	}

	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migration complete")
}
