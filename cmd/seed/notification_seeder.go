package main

import (
	"log"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/pkg/events"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	webOnly     = datatypes.JSON([]byte(`["web"]`))
	webAndEmail = datatypes.JSON([]byte(`["web", "email"]`))
)

// SeedNotificationTypes populates the registry of event -> notification
// mappings. Existing codes are left as they are.
func SeedNotificationTypes(db *gorm.DB) {
	types := []model.NotificationType{
		{
			Code:        events.TripAssigned,
			DisplayName: "Trip Assigned",
			Template:    "Trip {trip_code} to {destination} has been assigned to you",
			TargetType:  model.TargetSelf, // the driver
			Priority:    "HIGH",
			Channels:    webAndEmail,
			IsActive:    true,
		},
		{
			Code:        events.TripCompleted,
			DisplayName: "Trip Completed",
			Template:    "Trip {trip_code} was completed by {driver_name}",
			TargetType:  model.TargetRole,
			TargetRole:  model.RoleDispatcher,
			Priority:    "MEDIUM",
			Channels:    webOnly,
			IsActive:    true,
		},
		{
			Code:        events.ExpenseSubmitted,
			DisplayName: "Expense Submitted",
			Template:    "{category} expense of {amount} for trip {trip_code} is waiting for approval",
			TargetType:  model.TargetRole,
			TargetRole:  model.RoleFinance,
			Priority:    "MEDIUM",
			Channels:    webAndEmail,
			IsActive:    true,
		},
		{
			Code:        events.ExpenseApproved,
			DisplayName: "Expense Approved",
			Template:    "Your {category} expense of {amount} for trip {trip_code} was approved",
			TargetType:  model.TargetSelf,
			Priority:    "MEDIUM",
			Channels:    webOnly,
			IsActive:    true,
		},
		{
			Code:        events.PricingUpdated,
			DisplayName: "Pricing Updated",
			Template:    "Rate card for {route} changed to {price} per {unit}",
			TargetType:  model.TargetAdmin,
			Priority:    "LOW",
			Channels:    webOnly,
			IsActive:    true,
		},
		{
			Code:        events.DriverRegistered,
			DisplayName: "New Driver",
			Template:    "Driver {full_name} ({license_no}) registered and needs verification",
			TargetType:  model.TargetAdmin,
			Priority:    "MEDIUM",
			Channels:    webAndEmail,
			IsActive:    true,
		},
		{
			Code:        events.SystemBroadcast,
			DisplayName: "System Announcement",
			Template:    "{message}",
			TargetType:  model.TargetBroadcast,
			Priority:    "HIGH",
			Channels:    webOnly,
			IsActive:    true,
		},
	}

	for _, t := range types {
		if err := db.Where("code = ?", t.Code).FirstOrCreate(&t).Error; err != nil {
			log.Printf("Error seeding notification type %s: %v", t.Code, err)
		}
	}
	log.Printf("Seeded %d notification types.", len(types))
}

// SeedDemoUsers creates one account per role for local runs.
func SeedDemoUsers(db *gorm.DB) {
	users := []model.User{
		{Id: "admin-1", Email: "ops@fleet.example", FullName: "Ops Lead", Role: model.RoleAdmin},
		{Id: "dispatcher-7", Email: "dispatch@fleet.example", FullName: "Sari Dispatcher", Role: model.RoleDispatcher},
		{Id: "finance-2", Email: "finance@fleet.example", FullName: "Rina Finance", Role: model.RoleFinance},
		{Id: "driver-3", Email: "driver3@fleet.example", FullName: "Agus Driver", Role: model.RoleDriver},
	}
	for _, u := range users {
		if err := db.Where("id = ?", u.Id).FirstOrCreate(&u).Error; err != nil {
			log.Printf("Error seeding user %s: %v", u.Id, err)
		}
	}
}
