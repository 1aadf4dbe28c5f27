package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/rcms-care/portal-backend/config"
	"github.com/rcms-care/portal-backend/monitoring"
	"github.com/rcms-care/portal-backend/shared/audit"
	redisclient "github.com/rcms-care/portal-backend/shared/redis"
	"github.com/rcms-care/portal-backend/shared/utils"
	v1handlers "github.com/rcms-care/portal-backend/v1/handlers"
	v1middleware "github.com/rcms-care/portal-backend/v1/middleware"
	"github.com/rcms-care/portal-backend/v1/session"
	"github.com/rcms-care/portal-backend/v1/store"
)

func main() {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	slog.SetDefault(logger)

	cfg := config.Load()
	slog.Info("Starting Portal Backend initialization", "env", cfg.Service.Env)

	if err := monitoring.Initialize(monitoring.Config{
		ExporterType:   cfg.Metrics.ExporterType,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
	}); err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	gormDB, err := store.Connect(store.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Username:        cfg.Database.Username,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.Service.Env == "development" {
		if err := store.AutoMigrate(gormDB); err != nil {
			slog.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// Flash store: Redis when configured, in-process otherwise.
	var flash v1middleware.FlashStore
	var redisConn *redisclient.RedisClient
	if cfg.Redis.Addr != "" {
		redisConn, err = redisclient.NewClient(&redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		flash = v1middleware.NewRedisFlashStore(redisConn, cfg.Session.FlashTTL)
	} else {
		slog.Info("No Redis address configured, using in-memory flash store")
		flash = v1middleware.NewMemoryFlashStore(cfg.Session.FlashTTL)
	}

	// Audit sink: remote trail service when configured, local table otherwise.
	if cfg.Audit.ServiceURL != "" {
		audit.InitializeGlobalAudit(audit.NewClient(cfg.Audit.ServiceURL))
	} else {
		auditStore := audit.NewStore(gormDB)
		if err := auditStore.AutoMigrate(); err != nil {
			slog.Error("Failed to migrate audit table", "error", err)
			os.Exit(1)
		}
		audit.InitializeGlobalAudit(auditStore)
	}

	// Session machinery: the identity middleware attaches the bearer
	// identity to each request and warms that subject's own session
	// machine in the registry; roles come from the store. Authorization
	// is always decided against the requesting subject's machine.
	fetcher := session.NewFetcher(store.NewGormRoleStore(gormDB), cfg.Session.RoleResolveTimeout)
	sessions := session.NewRegistry(fetcher, session.Options{
		AuthResolveTimeout: cfg.Session.AuthResolveTimeout,
		RoleResolveTimeout: cfg.Session.RoleResolveTimeout,
	})

	guard := v1middleware.NewRouteGuard(sessions, flash, cfg.Session.GuardGrace)
	identity := v1middleware.NewIdentityMiddleware(sessions)

	apiMux := http.NewServeMux()
	v1Handler := v1handlers.NewV1Handler(store.NewGormCaseStore(gormDB), sessions, guard)
	v1Handler.SetupV1Routes(apiMux)

	protectedAPIHandler := monitoring.HTTPMetricsMiddleware(identity.Attach(apiMux))

	topLevelMux := http.NewServeMux()
	topLevelMux.Handle("/api/v1/", protectedAPIHandler)
	topLevelMux.Handle("/metrics", monitoring.Handler())
	topLevelMux.Handle("/livez", utils.HealthHandler(cfg.Service.Name))
	topLevelMux.Handle("/health", utils.PanicRecoveryMiddleware(healthHandler(cfg, gormDB, redisConn)))

	serverCfg := utils.DefaultServerConfig()
	serverCfg.Port = cfg.Service.Port
	serverCfg.ReadTimeout = 15 * time.Second
	serverCfg.WriteTimeout = 15 * time.Second
	server := utils.CreateServer(serverCfg, topLevelMux)

	serveErr := utils.StartServerWithGracefulShutdown(server, cfg.Service.Name)

	slog.Info("Shutting down Portal Backend...")
	sessions.Close()

	if redisConn != nil {
		if err := redisConn.Close(); err != nil {
			slog.Error("Failed to close Redis connection", "error", err)
		}
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}

	if serveErr != nil {
		os.Exit(1)
	}
	slog.Info("Portal Backend exited")
}

// healthHandler reports database and Redis health in one response.
func healthHandler(cfg *config.Config, gormDB *gorm.DB, redisConn *redisclient.RedisClient) http.HandlerFunc {
	type DepHealth struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	type HealthStatus struct {
		Status       string               `json:"status"`
		Service      string               `json:"service"`
		Dependencies map[string]DepHealth `json:"dependencies"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:       "healthy",
			Service:      cfg.Service.Name,
			Dependencies: map[string]DepHealth{},
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if gormDB == nil {
			status.Dependencies["database"] = DepHealth{Status: "unhealthy", Error: "connection is nil"}
			status.Status = "unhealthy"
		} else if sqlDB, err := gormDB.DB(); err != nil {
			status.Dependencies["database"] = DepHealth{Status: "unhealthy", Error: fmt.Sprintf("failed to get sql.DB: %v", err)}
			status.Status = "unhealthy"
		} else if err := sqlDB.PingContext(ctx); err != nil {
			status.Dependencies["database"] = DepHealth{Status: "unhealthy", Error: err.Error()}
			status.Status = "unhealthy"
		} else {
			status.Dependencies["database"] = DepHealth{Status: "healthy"}
		}

		if redisConn != nil {
			if err := redisConn.HealthCheck(ctx); err != nil {
				status.Dependencies["redis"] = DepHealth{Status: "unhealthy", Error: err.Error()}
				status.Status = "unhealthy"
			} else {
				status.Dependencies["redis"] = DepHealth{Status: "healthy"}
			}
		}

		statusCode := http.StatusOK
		if status.Status != "healthy" {
			statusCode = http.StatusServiceUnavailable
		}
		utils.RespondWithJSON(w, statusCode, status)
	}
}
