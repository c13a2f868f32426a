package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/config"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/controller"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/service"
	"github.com/lgu-bplo/bizpermit-backend/internal/db"
	"github.com/lgu-bplo/bizpermit-backend/internal/middleware"
	"github.com/lgu-bplo/bizpermit-backend/internal/router"
	"github.com/lgu-bplo/bizpermit-backend/internal/scheduler"
	"github.com/lgu-bplo/bizpermit-backend/internal/storage"
	"github.com/lgu-bplo/bizpermit-backend/internal/websocket"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/lgu-bplo/bizpermit-backend/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
	})

	logger.Info("Starting business permit server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis is optional; without it events are not published and the
	// reminder lock is local.
	var publisher *redis.Publisher
	var locker *redis.Locker
	if cfg.Redis.Enabled {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Warn("Redis unavailable, continuing without it", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer redis.Close()
			publisher = redis.NewPublisher(redis.GetClient())
			locker = redis.NewLocker(redis.GetClient())
		}
	}

	var archive *storage.S3Storage
	if cfg.S3.Enabled {
		archive = storage.NewS3Storage(
			cfg.S3.Region,
			cfg.S3.Bucket,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.BaseURL,
		)
	}

	hub := websocket.NewHub()
	go hub.Run()

	// Initialize repositories
	database := db.GetDB()
	permitRepo := repository.NewPermitRepository(database)
	historyRepo := repository.NewPermitHistoryRepository(database)
	businessTypeRepo := repository.NewBusinessTypeRepository(database)
	notificationRepo := repository.NewNotificationRepository(database)
	residentRepo := repository.NewResidentRepository(database)

	// Initialize services
	notificationService := service.NewNotificationService(notificationRepo, hub, publisher)
	permitService := service.NewPermitService(
		database,
		permitRepo,
		historyRepo,
		businessTypeRepo,
		service.NewResidentDirectory(residentRepo),
		notificationService,
		cfg.Permit,
	)
	lifecycleService := service.NewPermitLifecycleService(database, permitRepo, historyRepo, notificationService, cfg.Permit)
	renewalService := service.NewRenewalService(database, permitRepo, historyRepo, notificationService, cfg.Permit)
	reportService := service.NewReportService(permitService, archive)
	businessTypeService := service.NewBusinessTypeService(businessTypeRepo)
	reminderService := service.NewRenewalReminderService(permitService, notificationRepo, notificationService)

	reminderScheduler := scheduler.NewRenewalReminderScheduler(cfg.Scheduler.ReminderCron, reminderService, locker)
	if err := reminderScheduler.Start(); err != nil {
		logger.Fatal("Failed to start renewal reminder scheduler", err)
	}
	defer reminderScheduler.Stop()

	// Initialize controllers
	permitController := controller.NewPermitController(
		permitService,
		lifecycleService,
		renewalService,
		reportService,
		cfg.Permit.ValidityYears,
	)
	businessTypeController := controller.NewBusinessTypeController(businessTypeService)
	notificationController := controller.NewNotificationController(notificationService)
	websocketController := controller.NewWebSocketController(hub, cfg.CORS.AllowedOrigins)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Setup router
	r := router.NewRouter(
		permitController,
		businessTypeController,
		notificationController,
		websocketController,
		authMiddleware,
		cfg,
	)
	engine := r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: engine,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	logger.Info("Server stopped successfully")
}
