// Package config loads service configuration from the environment.
package config

import (
	"strconv"
	"time"

	"github.com/rcms-care/portal-backend/shared/utils"
)

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name    string
	Version string
	Port    string
	Env     string
}

// DatabaseConfig holds the case/profile database settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
	// Path is the sqlite database path, used when Driver is "sqlite".
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the flash-store connection settings. An empty Addr
// selects the in-memory flash store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuditConfig selects the audit sink. When ServiceURL is set the trail
// goes to the remote audit service; otherwise it is kept in the local
// database.
type AuditConfig struct {
	ServiceURL string
}

// SessionConfig holds the resolution and guard timing bounds.
type SessionConfig struct {
	// AuthResolveTimeout bounds boot-time auth resolution.
	AuthResolveTimeout time.Duration
	// RoleResolveTimeout bounds a role lookup; exceeding it degrades to
	// "no role known".
	RoleResolveTimeout time.Duration
	// GuardGrace is how long the route guard waits for a settling
	// session before failing closed.
	GuardGrace time.Duration
	// FlashTTL caps how long a denial reason survives unread.
	FlashTTL time.Duration
}

// MetricsConfig selects the metrics exporter.
type MetricsConfig struct {
	// ExporterType is "prometheus" or "none".
	ExporterType string
}

// Config is the root configuration.
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Audit    AuditConfig
	Session  SessionConfig
	Metrics  MetricsConfig
}

// Load reads configuration from the environment with sensible defaults
// for local development.
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:    utils.GetEnvOrDefault("SERVICE_NAME", "portal-backend"),
			Version: utils.GetEnvOrDefault("SERVICE_VERSION", "dev"),
			Port:    utils.GetEnvOrDefault("PORT", "8080"),
			Env:     utils.GetEnvOrDefault("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Driver:          utils.GetEnvOrDefault("DB_DRIVER", "postgres"),
			Host:            utils.GetEnvOrDefault("DB_HOST", "localhost"),
			Port:            utils.GetEnvOrDefault("DB_PORT", "5432"),
			Username:        utils.GetEnvOrDefault("DB_USERNAME", "postgres"),
			Password:        utils.GetEnvOrDefault("DB_PASSWORD", ""),
			Database:        utils.GetEnvOrDefault("DB_NAME", "rcms_portal"),
			SSLMode:         utils.GetEnvOrDefault("DB_SSLMODE", "disable"),
			Path:            utils.GetEnvOrDefault("DB_SQLITE_PATH", "portal.db"),
			MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: utils.GetEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     utils.GetEnvOrDefault("REDIS_ADDR", ""),
			Password: utils.GetEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
		},
		Audit: AuditConfig{
			ServiceURL: utils.GetEnvOrDefault("AUDIT_SERVICE_URL", ""),
		},
		Session: SessionConfig{
			AuthResolveTimeout: utils.GetEnvDurationOrDefault("AUTH_RESOLVE_TIMEOUT", 3*time.Second),
			RoleResolveTimeout: utils.GetEnvDurationOrDefault("ROLE_RESOLVE_TIMEOUT", 12*time.Second),
			GuardGrace:         utils.GetEnvDurationOrDefault("GUARD_GRACE", 2*time.Second),
			FlashTTL:           utils.GetEnvDurationOrDefault("FLASH_TTL", 5*time.Minute),
		},
		Metrics: MetricsConfig{
			ExporterType: utils.GetEnvOrDefault("OTEL_METRICS_EXPORTER", "prometheus"),
		},
	}
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := utils.GetEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
