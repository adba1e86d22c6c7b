package model

import (
	"time"

	"gorm.io/datatypes"
)

// IndexUserCreated is the composite index the live notification query relies on.
const IndexUserCreated = "idx_notifications_user_created"

// NotificationType serves as a registry for event-to-notification mapping.
type NotificationType struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code        string         `gorm:"type:varchar(50);unique;not null" json:"code"`
	DisplayName string         `gorm:"type:varchar(100);not null" json:"display_name"`
	Template    string         `gorm:"type:text;not null" json:"template"`
	TargetType  string         `gorm:"type:varchar(20);not null" json:"target_type"` // SELF, ADMIN, ROLE, BROADCAST
	TargetRole  string         `gorm:"type:varchar(50)" json:"target_role,omitempty"`
	Priority    string         `gorm:"type:varchar(10);default:'MEDIUM'" json:"priority"`
	Channels    datatypes.JSON `gorm:"type:jsonb;default:'[\"web\"]'" json:"channels"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

const (
	TargetSelf      = "SELF"
	TargetAdmin     = "ADMIN"
	TargetRole      = "ROLE"
	TargetBroadcast = "BROADCAST"

	ChannelWeb   = "web"
	ChannelEmail = "email"
)

// Notification is one message in a recipient's inbox. IsRead flips false->true
// at most once; rows are created by the event consumer and never deleted here.
type Notification struct {
	ID         string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID     string         `gorm:"type:varchar(64);not null;index:idx_notifications_user_created,priority:1;index:idx_notifications_user_unread,priority:1" json:"recipient_id"`
	ActorID    string         `gorm:"type:varchar(64)" json:"actor_id,omitempty"`
	TypeCode   string         `gorm:"type:varchar(50);not null;index:idx_notifications_type" json:"type_code"`
	EntityType string         `gorm:"type:varchar(50);index:idx_notifications_entity,priority:1" json:"entity_type,omitempty"`
	EntityID   string         `gorm:"type:varchar(64);index:idx_notifications_entity,priority:2" json:"entity_id,omitempty"`
	Title      string         `gorm:"type:varchar(200);not null" json:"title"`
	Message    string         `gorm:"type:text;not null" json:"body"`
	Metadata   datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	IsRead     bool           `gorm:"default:false;index:idx_notifications_user_unread,priority:2" json:"read"`
	ReadAt     *time.Time     `json:"read_at,omitempty"`
	CreatedAt  time.Time      `gorm:"default:CURRENT_TIMESTAMP;index:idx_notifications_user_created,priority:2,sort:desc" json:"created_at"`
}

// UserNotificationPreference stores user settings.
type UserNotificationPreference struct {
	UserID       string                      `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	MutedTypes   datatypes.JSONSlice[string] `gorm:"type:text" json:"muted_types"`
	EmailEnabled bool                        `gorm:"default:true" json:"email_enabled"`
	UpdatedAt    time.Time                   `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Mutes reports whether the recipient silenced the given type code.
func (p *UserNotificationPreference) Mutes(typeCode string) bool {
	if p == nil {
		return false
	}
	for _, code := range p.MutedTypes {
		if code == typeCode {
			return true
		}
	}
	return false
}
