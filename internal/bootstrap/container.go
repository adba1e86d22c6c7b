package bootstrap

import (
	"context"

	"logistics-admin-be/internal/config"
	"logistics-admin-be/internal/handler"
	"logistics-admin-be/internal/pkg/logger"
	"logistics-admin-be/internal/pkg/mailer"
	"logistics-admin-be/internal/repository/implementation"
	"logistics-admin-be/internal/repository/memory"
	"logistics-admin-be/internal/service"
	"logistics-admin-be/internal/websocket"
	"logistics-admin-be/pkg/changefeed"
	"logistics-admin-be/pkg/livequery"
	pktNats "logistics-admin-be/pkg/nats"
	"logistics-admin-be/pkg/notifsync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const moduleBootstrap = "Bootstrap"

type Container struct {
	Logger       logger.ILogger
	NotifyLogger logger.ILogger

	// Live notification stack
	Feed     changefeed.Feed
	Store    *livequery.PollingStore
	Registry *notifsync.Registry

	// WebSockets & Notification
	NotificationService *service.NotificationService
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub

	natsPub *pktNats.Publisher
	natsSub *pktNats.Subscriber
	rdb     *redis.Client
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction(), logger.WithLevel(cfg.App.LogLevel))
	notifyLogger := logger.NewIsolatedLogger(cfg.Notify.LogFilePath)

	var emailService mailer.IEmailService
	if cfg.SMTP.Host != "" {
		emailService = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.Email,
			cfg.SMTP.SenderName,
			cfg.App.ClientURL,
			notifyLogger,
		)
	} else {
		sysLogger.Warn(moduleBootstrap, "SMTP_HOST not set, email channel disabled", nil)
	}

	// 2. Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
	if err != nil {
		sysLogger.Warn(moduleBootstrap, "Failed to connect to NATS Publisher", map[string]interface{}{"error": err.Error()})
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
	if err != nil {
		sysLogger.Warn(moduleBootstrap, "Failed to connect to NATS Subscriber", map[string]interface{}{"error": err.Error()})
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		sysLogger.Warn(moduleBootstrap, "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		sysLogger.Warn(moduleBootstrap, "Failed to connect to Redis, running single instance", map[string]interface{}{"error": err.Error()})
		rdb.Close()
		rdb = nil
	}

	// 3. Change feed: redis when instances must see each other's writes
	var feed changefeed.Feed
	if cfg.Notify.ChangeFeed == config.ChangeFeedRedis && rdb != nil {
		feed = changefeed.NewRedisFeed(rdb, notifyLogger)
	} else {
		feed = changefeed.NewWatermillFeed(watermill.NewStdLogger(false, false), notifyLogger)
	}

	// 4. Notification Domain
	notifRepo := implementation.NewNotificationRepository(db, implementation.WithRequireIndex(cfg.Notify.RequireIndex))
	typeCache := memory.NewTypeCache(notifRepo, cfg.Notify.TypeCacheTTL)

	store := livequery.NewPollingStore(notifRepo,
		livequery.WithInterval(cfg.Notify.PollInterval),
		livequery.WithFeed(feed),
		livequery.WithLogger(notifyLogger),
	)
	registry := notifsync.NewRegistry(store, notifyLogger, notifsync.WithSnapshotLimit(cfg.Notify.SnapshotLimit))

	wsHub := websocket.NewHub(rdb, registry, notifyLogger)

	deps := service.NotificationServiceDeps{
		Repo:     notifRepo,
		Types:    typeCache,
		Delivery: wsHub, // Hub implements NotificationDelivery
		Feed:     feed,
		Mailer:   emailService,
		Logger:   notifyLogger,
	}
	if natsSub != nil {
		deps.Subscriber = natsSub
	}
	notifService := service.NewNotificationService(deps)

	// A nil *Publisher must not become a non-nil interface
	var publisher handler.EventPublisher
	if natsPub != nil {
		publisher = natsPub
	}
	notifHandler := handler.NewNotificationHandler(notifService, publisher, wsHub, cfg.Auth.JWTSecret, !cfg.IsProduction(), notifyLogger)

	return &Container{
		Logger:              sysLogger,
		NotifyLogger:        notifyLogger,
		Feed:                feed,
		Store:               store,
		Registry:            registry,
		NotificationService: notifService,
		NotificationHandler: notifHandler,
		WebSocketHub:        wsHub,
		natsPub:             natsPub,
		natsSub:             natsSub,
		rdb:                 rdb,
	}
}

// Start runs the background workers until ctx is done.
func (c *Container) Start(ctx context.Context) {
	go c.WebSocketHub.Run(ctx)

	if err := c.NotificationService.Start(); err != nil {
		c.Logger.Error(moduleBootstrap, "Notification consumer not running", map[string]interface{}{"error": err.Error()})
	}
}

// Close releases everything in reverse order of construction.
func (c *Container) Close() {
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	c.Registry.Close()
	c.Store.Close()
	if err := c.Feed.Close(); err != nil {
		c.Logger.Warn(moduleBootstrap, "Change feed close failed", map[string]interface{}{"error": err.Error()})
	}
	if c.rdb != nil {
		c.rdb.Close()
	}
	_ = c.NotifyLogger.Sync()
	_ = c.Logger.Sync()
}
