package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/pkg/logger"
	"logistics-admin-be/internal/pkg/mailer"
	"logistics-admin-be/internal/repository"
	"logistics-admin-be/pkg/changefeed"
	"logistics-admin-be/pkg/events"
	pktNats "logistics-admin-be/pkg/nats" // Renamed to avoid collision

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

const moduleNotification = "NotificationService"

// NotificationDelivery pushes toasts to connected consoles.
// Implemented by the WebSocket Hub.
type NotificationDelivery interface {
	Send(userID string, notification model.Notification)
	Broadcast(notification model.Notification)
}

type TypeLookup interface {
	GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error)
}

type EventSubscriber interface {
	Subscribe(subject string, durableName string, handler pktNats.EventHandler) error
}

type NotificationServiceDeps struct {
	Repo       repository.NotificationRepository
	Types      TypeLookup // defaults to Repo
	Subscriber EventSubscriber
	Delivery   NotificationDelivery
	Feed       changefeed.Feed
	Mailer     mailer.IEmailService
	Logger     logger.Logger
}

// NotificationService turns domain events into stored notifications and
// serves the inbox endpoints.
type NotificationService struct {
	repo       repository.NotificationRepository
	types      TypeLookup
	subscriber EventSubscriber
	delivery   NotificationDelivery
	feed       changefeed.Feed
	mailer     mailer.IEmailService
	logger     logger.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewNotificationService(deps NotificationServiceDeps) *NotificationService {
	s := &NotificationService{
		repo:       deps.Repo,
		types:      deps.Types,
		subscriber: deps.Subscriber,
		delivery:   deps.Delivery,
		feed:       deps.Feed,
		mailer:     deps.Mailer,
		logger:     deps.Logger,
		tracer:     otel.Tracer("logistics-admin-be/service"),
		now:        time.Now,
	}
	if s.types == nil {
		s.types = deps.Repo
	}
	if s.feed == nil {
		s.feed = changefeed.Nop{}
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	return s
}

// Start begins listening to the event bus.
func (s *NotificationService) Start() error {
	if s.subscriber == nil {
		s.logger.Warn(moduleNotification, "No event subscriber configured, notifications come from direct calls only", nil)
		return nil
	}
	if err := s.subscriber.Subscribe(pktNats.SubjectPrefix+">", "notif-service-worker", s.HandleEvent); err != nil {
		s.logger.Error(moduleNotification, "Failed to start notification subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info(moduleNotification, "Notification service started, listening to events.>", nil)
	return nil
}

// HandleEvent stores and pushes the notifications one event produces. An
// error means the event should be redelivered.
func (s *NotificationService) HandleEvent(ctx context.Context, event events.Event) error {
	typeCode := strings.TrimPrefix(event.EventType(), pktNats.SubjectPrefix)

	ctx, span := s.tracer.Start(ctx, "notification.HandleEvent", trace.WithAttributes(attribute.String("event.type", typeCode)))
	defer span.End()

	s.logger.Info(moduleNotification, fmt.Sprintf("Processing event: %s", typeCode), map[string]interface{}{"type": typeCode})

	config, err := s.types.GetNotificationTypeByCode(ctx, typeCode)
	if err != nil {
		s.logger.Warn(moduleNotification, fmt.Sprintf("Config not found for code: '%s'", typeCode), map[string]interface{}{"error": err.Error()})
		return nil
	}
	if !config.IsActive {
		s.logger.Info(moduleNotification, fmt.Sprintf("Notification type '%s' is inactive", typeCode), nil)
		return nil
	}

	// Broadcasts are push only. Storing one row per user would put every
	// announcement in every inbox forever.
	if config.TargetType == model.TargetBroadcast {
		if s.delivery != nil {
			s.delivery.Broadcast(s.buildNotification("", config, event))
		}
		return nil
	}

	recipients, err := s.resolveRecipients(ctx, config, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve recipients")
		s.logger.Error(moduleNotification, fmt.Sprintf("Error resolving recipients for %s", typeCode), map[string]interface{}{"error": err.Error()})
		return err
	}
	span.SetAttributes(attribute.Int("notification.recipients", len(recipients)))
	s.logger.Info(moduleNotification, "Recipients resolved", map[string]interface{}{"count": len(recipients), "type": config.TargetType})

	for _, userID := range recipients {
		s.deliverTo(ctx, userID, config, event)
	}
	return nil
}

func (s *NotificationService) deliverTo(ctx context.Context, userID string, config *model.NotificationType, event events.Event) {
	pref, err := s.repo.GetPreference(ctx, userID)
	if err != nil {
		// Defaults apply: nothing muted, email on
		s.logger.Warn(moduleNotification, "Failed to load preferences", map[string]interface{}{"user_id": userID, "error": err.Error()})
		pref = nil
	}
	if pref.Mutes(config.Code) {
		s.logger.Debug(moduleNotification, "Type muted by recipient", map[string]interface{}{"user_id": userID, "type": config.Code})
		return
	}

	notif := s.buildNotification(userID, config, event)
	if err := s.repo.CreateNotification(ctx, &notif); err != nil {
		s.logger.Error(moduleNotification, fmt.Sprintf("Error saving notification for user %s", userID), map[string]interface{}{"error": err.Error()})
		return
	}

	// Live engines pick the new row up from their next query
	s.signal(ctx, userID)

	if s.delivery != nil {
		s.delivery.Send(userID, notif)
	}

	if s.mailer != nil && wantsChannel(config, model.ChannelEmail) && (pref == nil || pref.EmailEnabled) {
		s.sendEmail(ctx, userID, notif)
	}
}

func (s *NotificationService) sendEmail(ctx context.Context, userID string, notif model.Notification) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Warn(moduleNotification, "Recipient lookup for email failed", map[string]interface{}{"user_id": userID, "error": err.Error()})
		return
	}
	if user.Email == "" {
		return
	}
	// Errors are logged by the mailer; the in-app notification already exists
	_ = s.mailer.SendNotification(user.Email, user.FullName, notif)
}

func (s *NotificationService) resolveRecipients(ctx context.Context, config *model.NotificationType, event events.Event) ([]string, error) {
	var userIDs []string

	switch config.TargetType {
	case model.TargetSelf:
		uid, ok := events.String(event, "user_id")
		if !ok {
			s.logger.Warn(moduleNotification, fmt.Sprintf("TargetType SELF but no user_id found in payload for event %s", event.EventType()), nil)
			return nil, nil
		}
		return []string{uid}, nil

	case model.TargetAdmin, model.TargetRole:
		role := config.TargetRole
		if config.TargetType == model.TargetAdmin {
			role = model.RoleAdmin
		}
		users, err := s.repo.GetUsersByRole(ctx, role)
		if err != nil {
			return nil, err
		}

		// Whoever caused the event does not need to hear about it
		actorID, _ := events.String(event, "actor_id")
		for _, u := range users {
			if u.Id != actorID {
				userIDs = append(userIDs, u.Id)
			}
		}

	default:
		s.logger.Warn(moduleNotification, "Unknown target type", map[string]interface{}{"type": config.Code, "target_type": config.TargetType})
	}

	return userIDs, nil
}

func (s *NotificationService) buildNotification(userID string, config *model.NotificationType, event events.Event) model.Notification {
	payload := event.Payload()

	// Simple template engine: {key} -> payload[key]
	msg := config.Template
	for k, v := range payload {
		msg = strings.ReplaceAll(msg, "{"+k+"}", fmt.Sprintf("%v", v))
	}

	title := config.DisplayName
	if t, ok := events.String(event, "title"); ok {
		title = t
	}

	actorID, _ := events.String(event, "actor_id")
	entityType, _ := events.String(event, "entity_type")
	entityID, _ := events.String(event, "entity_id")

	metaMap := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		metaMap[k] = v
	}
	// Deep link for the console, e.g. /trips/<id>
	if entityType != "" && entityID != "" {
		metaMap["action_url"] = fmt.Sprintf("/%ss/%s", entityType, entityID)
	}
	metaJSON, _ := json.Marshal(metaMap)

	return model.Notification{
		ID:         uuid.NewString(),
		UserID:     userID,
		ActorID:    actorID,
		TypeCode:   config.Code,
		Title:      title,
		Message:    msg,
		Metadata:   datatypes.JSON(metaJSON),
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  s.now(),
		IsRead:     false,
	}
}

func wantsChannel(config *model.NotificationType, channel string) bool {
	if len(config.Channels) == 0 {
		return channel == model.ChannelWeb
	}
	var channels []string
	if err := json.Unmarshal(config.Channels, &channels); err != nil {
		return channel == model.ChannelWeb
	}
	for _, c := range channels {
		if c == channel {
			return true
		}
	}
	return false
}

func (s *NotificationService) signal(ctx context.Context, userID string) {
	if err := s.feed.Publish(ctx, userID); err != nil {
		s.logger.Warn(moduleNotification, "Change feed publish failed", map[string]interface{}{"user_id": userID, "error": err.Error()})
	}
}

// GetNotifications fetches a page of the user's inbox, newest first.
func (s *NotificationService) GetNotifications(ctx context.Context, userID string, limit, offset int) ([]model.Notification, int64, error) {
	return s.repo.GetNotificationsByUserID(ctx, userID, limit, offset)
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// MarkAsRead marks one of the user's notifications read. Open consoles of the
// same user resync through the change feed; marking a read item again is a
// silent no-op.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	changed, err := s.repo.MarkAsRead(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if changed {
		s.signal(ctx, userID)
	}
	return nil
}

// MarkAllAsRead marks every unread notification of the user read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.signal(ctx, userID)
	}
	return n, nil
}
