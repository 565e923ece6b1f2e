package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"eventhub/docs"
	"eventhub/internal/auth"
	"eventhub/internal/cache"
	"eventhub/internal/config"
	"eventhub/internal/db"
	"eventhub/internal/handler"
	"eventhub/internal/logging"
	"eventhub/internal/middleware"
	"eventhub/internal/repository"
	"eventhub/internal/router"
	"eventhub/internal/service"
	"eventhub/internal/storage"
)

// @title Event Hub API
// @version 1.0
// @description Event management API with JWT authentication, filtered event listings and image uploads.
// @host localhost:3000
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	logger := logging.New("eventhub", cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatalf("database init: %v", err)
	}

	// Drop tables if RESET_DB environment variable is set
	if cfg.ResetDB {
		logger.Warn("RESET_DB=true detected, dropping all tables...")
		if err := db.Reset(gormDB); err != nil {
			logger.Warnf("Failed to drop tables (may not exist): %v", err)
		}
	}
	if err := db.Migrate(gormDB); err != nil {
		logger.Fatalf("auto-migrate: %v", err)
	}

	cacheClient := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer cacheClient.Close()
	if cacheClient.Enabled() {
		if err := cacheClient.Ping(ctx); err != nil {
			logger.Warnf("redis unreachable at %s, continuing without cache: %v", cfg.Redis.Addr, err)
		}
	}

	backend, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("storage init: %v", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	eventRepo := repository.NewEventRepository(gormDB)

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	uploadService := service.NewUploadService(backend, logger)
	authService := service.NewAuthService(userRepo, jwtService, logger)
	userService := service.NewUserService(userRepo, cacheClient, uploadService, logger)
	eventService := service.NewEventService(eventRepo, cacheClient, uploadService, logger)

	// Rate limiting falls back to process memory when Redis is absent or failing.
	var limiterStore = middleware.NewMemoryStore(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if cacheClient.Enabled() {
		limiterStore = middleware.NewRedisStore(cacheClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, limiterStore, logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger

	router.Register(e, cfg, router.Dependencies{
		Auth:          middleware.JWT(jwtService),
		RateLimit:     middleware.RateLimit(limiterStore),
		RequestLogger: middleware.RequestLogger(logger),
	}, router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		User:   handler.NewUserHandler(userService),
		Event:  handler.NewEventHandler(eventService, uploadService, cfg.Storage.TempDir),
		Upload: handler.NewUploadHandler(uploadService, cfg.Storage.TempDir),
		Health: handler.NewHealthHandler(gormDB, cacheClient),
	})

	// Log swagger full path
	swaggerHost := cfg.SwaggerHost
	if swaggerHost == "" {
		swaggerHost = "localhost:" + cfg.ServerPort
	}
	docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(swaggerHost, "https://"), "http://")
	swaggerURL := swaggerHost
	if !strings.HasPrefix(swaggerURL, "http://") && !strings.HasPrefix(swaggerURL, "https://") {
		swaggerURL = "http://" + swaggerURL
	}
	logger.Infof("Swagger documentation available at: %s/swagger/index.html", swaggerURL)

	go func() {
		addr := ":" + cfg.ServerPort
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server start: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}
