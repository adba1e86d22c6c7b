package handler

import (
	"context"
	"errors"

	"logistics-admin-be/internal/dto"
	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/pkg/logger"
	"logistics-admin-be/internal/pkg/serverutils"
	"logistics-admin-be/internal/repository"
	"logistics-admin-be/internal/service"
	internalWS "logistics-admin-be/internal/websocket"
	"logistics-admin-be/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type NotificationHandler struct {
	service    *service.NotificationService
	publisher  EventPublisher
	hub        *internalWS.Hub
	authSecret string
	debug      bool
	logger     logger.Logger
}

// NewNotificationHandler wires the routes. A nil publisher makes triggered
// events run inline instead of through the bus.
func NewNotificationHandler(service *service.NotificationService, pub EventPublisher, hub *internalWS.Hub, authSecret string, debug bool, log logger.Logger) *NotificationHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &NotificationHandler{
		service:    service,
		publisher:  pub,
		hub:        hub,
		authSecret: authSecret,
		debug:      debug,
		logger:     log,
	}
}

// ServeWs authenticates the handshake and hands the connection to the hub.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	// Browsers cannot set headers on websocket requests, so the query param wins
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c)
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
	}

	claims, err := serverutils.ParseToken(tokenStr, h.authSecret)
	if err != nil {
		h.logger.Warn("NotificationHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID := claims.UserID
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("NotificationHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("NotificationHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

// GetNotifications returns one page of the user's inbox.
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	userID, ok := serverutils.UserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	q := dto.ListNotificationsQuery{Limit: c.QueryInt("limit", 20), Offset: c.QueryInt("offset", 0)}
	if err := serverutils.Validate(q); err != nil {
		return err
	}

	notifications, total, err := h.service.GetNotifications(c.UserContext(), userID, q.Limit, q.Offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data":  notifications,
		"total": total,
		"page":  q.Offset/q.Limit + 1,
		"limit": q.Limit,
	})
}

func (h *NotificationHandler) GetUnreadCount(c *fiber.Ctx) error {
	userID, ok := serverutils.UserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	count, err := h.service.GetUnreadCount(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": count})
}

// MarkAsRead marks one of the caller's notifications read.
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	userID, ok := serverutils.UserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	err := h.service.MarkAsRead(c.UserContext(), userID, c.Params("id"))
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Notification not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	userID, ok := serverutils.UserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	n, err := h.service.MarkAllAsRead(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "updated": n})
}

// DebugTriggerEvent simulates a domain event to test the flow.
func (h *NotificationHandler) DebugTriggerEvent(c *fiber.Ctx) error {
	var req dto.TriggerEventRequest
	if err := serverutils.ParseBody(c, &req); err != nil {
		return err
	}

	// Default the SELF target to the caller
	if req.Payload == nil {
		req.Payload = make(map[string]interface{})
	}
	if _, ok := req.Payload["user_id"]; !ok {
		if uid, ok := serverutils.UserID(c); ok {
			req.Payload["user_id"] = uid
		}
	}

	evt := events.New(req.Type, req.Payload)
	if err := h.dispatch(c.UserContext(), evt); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "Event Published", "event": evt})
}

// Broadcast sends a system-wide announcement.
func (h *NotificationHandler) Broadcast(c *fiber.Ctx) error {
	var req dto.BroadcastRequest
	if err := serverutils.ParseBody(c, &req); err != nil {
		return err
	}

	evt := events.New(events.SystemBroadcast, map[string]interface{}{
		"title":   req.Title,
		"message": req.Message,
	})
	if err := h.dispatch(c.UserContext(), evt); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "Broadcast Queued"})
}

func (h *NotificationHandler) dispatch(ctx context.Context, evt events.Event) error {
	if h.publisher != nil {
		return h.publisher.Publish(ctx, evt)
	}
	return h.service.HandleEvent(ctx, evt)
}

// RegisterRoutes registers the notification routes.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	auth := serverutils.NewJwtMiddleware(h.authSecret)

	notif := router.Group("/notifications", auth)
	notif.Get("/", h.GetNotifications)
	notif.Get("/unread-count", h.GetUnreadCount)
	notif.Patch("/read-all", h.MarkAllAsRead)
	notif.Patch("/:id/read", h.MarkAsRead)
	notif.Post("/broadcast", serverutils.RequireRole(model.RoleAdmin), h.Broadcast)

	if h.debug {
		debug := router.Group("/debug", auth)
		debug.Post("/trigger-notification", h.DebugTriggerEvent)
	}

	router.Get("/ws", h.ServeWs)
}
