package implementation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/repository"

	"gorm.io/gorm"
)

type NotificationRepositoryImpl struct {
	db           *gorm.DB
	requireIndex bool
	indexSeen    atomic.Bool
}

type NotificationRepositoryOption func(*NotificationRepositoryImpl)

// WithRequireIndex makes ordered recipient queries fail with
// repository.ErrIndexMissing until IndexUserCreated exists.
func WithRequireIndex(require bool) NotificationRepositoryOption {
	return func(r *NotificationRepositoryImpl) {
		r.requireIndex = require
	}
}

func NewNotificationRepository(db *gorm.DB, opts ...NotificationRepositoryOption) *NotificationRepositoryImpl {
	r := &NotificationRepositoryImpl{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *NotificationRepositoryImpl) CreateNotification(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *NotificationRepositoryImpl) GetNotificationsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.Notification, int64, error) {
	var notifications []model.Notification
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Notification{}).Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error

	return notifications, total, err
}

func (r *NotificationRepositoryImpl) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepositoryImpl) FindByRecipient(ctx context.Context, userID string, ordered bool, limit int) ([]model.Notification, error) {
	db := r.db.WithContext(ctx).Where("user_id = ?", userID)

	if ordered {
		if err := r.checkIndex(); err != nil {
			return nil, err
		}
		db = db.Order("created_at DESC").Order("id")
		if limit > 0 {
			db = db.Limit(limit)
		}
	}

	notifications := make([]model.Notification, 0)
	if err := db.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// checkIndex only caches the positive answer; a dropped index is not noticed
// until restart, but a freshly created one is picked up on the next poll.
func (r *NotificationRepositoryImpl) checkIndex() error {
	if !r.requireIndex || r.indexSeen.Load() {
		return nil
	}
	if !r.db.Migrator().HasIndex(&model.Notification{}, model.IndexUserCreated) {
		return repository.ErrIndexMissing
	}
	r.indexSeen.Store(true)
	return nil
}

func (r *NotificationRepositoryImpl) MarkAsRead(ctx context.Context, userID, notificationID string) (bool, error) {
	now := time.Now()
	// Partial update; title/body/metadata are never rewritten
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", notificationID, userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		})

	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// Read is terminal: an already-read row is a no-op, not a miss
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, repository.ErrNotificationNotFound
	}
	return false, nil
}

func (r *NotificationRepositoryImpl) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepositoryImpl) GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error) {
	var notifType model.NotificationType
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&notifType).Error
	if err != nil {
		return nil, err
	}
	return &notifType, nil
}

func (r *NotificationRepositoryImpl) GetUsersByRole(ctx context.Context, role string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND status = ?", role, "active").
		Find(&users).Error
	return users, err
}

func (r *NotificationRepositoryImpl) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetPreference returns nil, nil when the user never saved preferences.
func (r *NotificationRepositoryImpl) GetPreference(ctx context.Context, userID string) (*model.UserNotificationPreference, error) {
	var pref model.UserNotificationPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}
