package model

// Tables lists every model owned by this service, in migration order.
func Tables() []interface{} {
	return []interface{}{
		&User{},
		&NotificationType{},
		&Notification{},
		&UserNotificationPreference{},
	}
}
