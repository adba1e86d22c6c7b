package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleFinance    = "finance"
	RoleDriver     = "driver"
)

// User is a notification recipient: back-office staff or a driver.
type User struct {
	Id        string         `gorm:"type:varchar(64);primaryKey"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null"`
	FullName  string         `gorm:"type:varchar(255);not null"`
	Role      string         `gorm:"type:varchar(50);not null;default:'dispatcher';index"`
	Status    string         `gorm:"type:varchar(50);not null;default:'active'"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (User) TableName() string {
	return "users"
}
