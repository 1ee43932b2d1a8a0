package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adveri/config"
	"adveri/middleware"
	"adveri/routes"
	"adveri/services"
	"adveri/utils"
	"adveri/worker"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	// Initialize logger and error reporting
	utils.InitLogger(cfg.Environment)
	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logrus.WithError(err).Warn("Sentry initialization failed")
	}
	defer sentry.Flush(2 * time.Second)

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logrus.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		logrus.WithField("address", cfg.Redis.Address).Info("Connected to redis")
	}

	logger := logrus.StandardLogger()
	hub := utils.NewEventHub()
	accounts := services.NewAccountService(config.DB, logger)

	if _, err := accounts.EnsureAdmin(ctx, cfg.Admin); err != nil {
		logrus.Fatalf("Failed to ensure admin account: %v", err)
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "AdVeri",
		ErrorHandler: utils.ErrorHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))

	// Setup routes
	routes.SetupRoutes(app, routes.Deps{
		DB:             config.DB,
		Accounts:       accounts,
		Campaigns:      services.NewCampaignService(config.DB, logger),
		Requests:       services.NewAdRequestService(config.DB, hub, logger),
		Moderation:     services.NewModerationService(config.DB, logger),
		Hub:            hub,
		Storage:        middleware.NewStorage(cfg, redisClient, "adveri:http:"),
		LoginRateLimit: cfg.LoginRateLimit,
	})

	// Initialize and start notification worker
	if cfg.SMTP.Host != "" {
		var lock worker.JobLock
		if redisClient != nil {
			lock = worker.NewRedisJobLock(redisClient)
		}
		notifier := worker.NewNotificationWorker(config.DB, utils.NewSMTPMailer(cfg.SMTP), lock, logger, cfg.NotifyHour)
		go notifier.Start(ctx)
	} else {
		logrus.Warn("SMTP_HOST not set, notification worker disabled")
	}

	// Start server
	go func() {
		logrus.Infof("🚀 Server starting on port %s", cfg.ServerPort)
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
}
