package main

import (
	"log"

	"logistics-admin-be/internal/config"
	"logistics-admin-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Seeding Notification Types...")
	SeedNotificationTypes(db)

	if cfg.App.Environment != "production" {
		log.Println("Seeding demo staff...")
		SeedDemoUsers(db)
	}
}
