package repository

import (
	"context"
	"errors"

	"logistics-admin-be/internal/model"
)

var (
	// ErrIndexMissing is returned by ordered recipient queries when the
	// composite (user_id, created_at) index has not been created.
	ErrIndexMissing = errors.New("notification index missing: " + model.IndexUserCreated)

	ErrNotificationNotFound = errors.New("notification not found")
)

type NotificationRepository interface {
	// Notification Operations
	CreateNotification(ctx context.Context, notification *model.Notification) error
	GetNotificationsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.Notification, int64, error)
	GetUnreadCount(ctx context.Context, userID string) (int64, error)
	// FindByRecipient backs the live query. ordered=true sorts by created_at DESC
	// and needs IndexUserCreated; ordered=false is the filter-only fallback.
	FindByRecipient(ctx context.Context, userID string, ordered bool, limit int) ([]model.Notification, error)
	// MarkAsRead flips an unread notification to read. changed is false when it
	// was already read; the row, including read_at, is then left as it was.
	MarkAsRead(ctx context.Context, userID, notificationID string) (changed bool, err error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)

	// Registry Operations
	GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error)
	GetUsersByRole(ctx context.Context, role string) ([]model.User, error)
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	GetPreference(ctx context.Context, userID string) (*model.UserNotificationPreference, error)
}
