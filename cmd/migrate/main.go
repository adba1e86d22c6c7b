package main

import (
	"log"

	"logistics-admin-be/internal/config"
	"logistics-admin-be/internal/model"
	"logistics-admin-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Printf("Running AutoMigrate for %d tables...", len(model.Tables()))
	if err := db.AutoMigrate(model.Tables()...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// The live inbox query sorts by created_at per recipient. The struct tags
	// already declare the index; this covers databases migrated before it.
	if !db.Migrator().HasIndex(&model.Notification{}, model.IndexUserCreated) {
		log.Printf("Creating index %s...", model.IndexUserCreated)
		if err := db.Migrator().CreateIndex(&model.Notification{}, model.IndexUserCreated); err != nil {
			log.Fatalf("Error: Failed to create %s: %v", model.IndexUserCreated, err)
		}
	}

	log.Println("Database migration completed.")
}
