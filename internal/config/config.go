package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Auth     AuthConfig
	Notify   NotifyConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	LogLevel           string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

type AuthConfig struct {
	JWTSecret string
}

const (
	ChangeFeedWatermill = "watermill"
	ChangeFeedRedis     = "redis"
)

// NotifyConfig tunes the live notification engines.
type NotifyConfig struct {
	LogFilePath   string
	PollInterval  time.Duration
	SnapshotLimit int
	ChangeFeed    string // "watermill" (single instance) or "redis" (cluster)
	RequireIndex  bool   // refuse ordered queries when idx_notifications_user_created is absent
	TypeCacheTTL  time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LogLevel:           getEnv("LOG_LEVEL", "debug"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "Logistics Admin"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Notify: NotifyConfig{
			LogFilePath:   getEnv("NOTIFY_LOG_FILE", "logs/notification.log"),
			PollInterval:  getEnvAsDuration("NOTIFY_POLL_INTERVAL", 15*time.Second),
			SnapshotLimit: getEnvAsInt("NOTIFY_SNAPSHOT_LIMIT", 50),
			ChangeFeed:    getEnv("NOTIFY_CHANGE_FEED", ChangeFeedWatermill),
			RequireIndex:  getEnvAsBool("NOTIFY_REQUIRE_INDEX", true),
			TypeCacheTTL:  getEnvAsDuration("NOTIFY_TYPE_CACHE_TTL", 5*time.Minute),
		},
	}
}

// IsProduction gates debug routes and the console log format.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Validate reports every setting the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Connection == "" {
		errs = append(errs, errors.New("DB_CONNECTION_STRING is not set"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.Notify.ChangeFeed != ChangeFeedWatermill && c.Notify.ChangeFeed != ChangeFeedRedis {
		errs = append(errs, fmt.Errorf("NOTIFY_CHANGE_FEED must be %q or %q, got %q", ChangeFeedWatermill, ChangeFeedRedis, c.Notify.ChangeFeed))
	}
	if c.Notify.SnapshotLimit < 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_SNAPSHOT_LIMIT must not be negative, got %d", c.Notify.SnapshotLimit))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil && value > 0 {
		return value
	}
	return fallback
}
