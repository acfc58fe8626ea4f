package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"spendly/internal/caching"
	"spendly/internal/handlers"
	"spendly/internal/jobs"
	"spendly/internal/jobs/background"
	"spendly/internal/middleware"
	"spendly/internal/providers"
	"spendly/internal/repositories"
	"spendly/internal/services"
	"spendly/pkg/database"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	pool, err := database.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	cache := caching.NewRedisEntitlementCache(
		envOr("REDIS_ADDR", "localhost:6379"),
		os.Getenv("REDIS_PASSWORD"),
		redisDB,
	)
	if err := cache.Ping(ctx); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}

	registry := providers.NewRegistry(
		providers.NewStripeAdapter(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		providers.NewPaypalAdapter(os.Getenv("PAYPAL_WEBHOOK_SECRET")),
		providers.NewPaddleAdapter(os.Getenv("PADDLE_WEBHOOK_SECRET")),
	)

	subscriptionRepo := repositories.NewSubscriptionRepo(pool)
	eventRepo := repositories.NewBillingEventRepo(pool)
	transactionRepo := repositories.NewTransactionRepo(pool)
	tenantRepo := repositories.NewTenantRepo(pool)
	reminderRepo := repositories.NewReminderRepo(pool)

	notifier := services.NewNotificationService(os.Getenv("NOTIFICATION_ENDPOINT"), logger)
	billingService := services.NewBillingService(
		pool, subscriptionRepo, eventRepo, transactionRepo, tenantRepo,
		cache, notifier, logger,
	)
	entitlementService := services.NewEntitlementService(subscriptionRepo, tenantRepo, cache, logger)

	sweeper := jobs.NewTrialSweeper(
		subscriptionRepo, reminderRepo, eventRepo, billingService, notifier,
		reminderDays(), retentionDays(), logger,
	)

	scheduler, err := background.NewJobScheduler(sweeper, logger)
	if err != nil {
		logger.Fatal("scheduler setup failed", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	webhookHandlers := handlers.NewWebhookHandlers(registry, billingService, logger)
	adminHandlers := handlers.NewAdminHandlers(billingService, entitlementService, eventRepo, transactionRepo, logger)
	sweepHandlers := handlers.NewSweepHandlers(sweeper, os.Getenv("SWEEP_SECRET"), logger)
	healthHandlers := handlers.NewHealthHandlers(pool, cache)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.CORS())

	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)

	e.POST("/webhooks/stripe", webhookHandlers.StripeWebhook)
	e.POST("/webhooks/paypal", webhookHandlers.PaypalWebhook)
	e.POST("/webhooks/paddle", webhookHandlers.PaddleWebhook)

	e.POST("/internal/sweep", sweepHandlers.TriggerSweep)

	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(os.Getenv("JWT_SECRET")))
	admin.Use(middleware.RequireAdmin)
	admin.POST("/subscriptions/:id/cancel", adminHandlers.CancelSubscription)
	admin.POST("/subscriptions/:id/reactivate", adminHandlers.ReactivateSubscription)
	admin.GET("/tenants/:id/billing-history", adminHandlers.BillingHistory)
	admin.GET("/tenants/:id/entitlements/:feature", adminHandlers.CheckEntitlement)

	port := envOr("PORT", "8080")
	logger.Info("starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func reminderDays() []int {
	raw := envOr("TRIAL_REMINDER_DAYS", "3,1")
	var days []int
	for _, part := range strings.Split(raw, ",") {
		if d, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && d > 0 {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		days = []int{3, 1}
	}
	return days
}

func retentionDays() time.Duration {
	days, err := strconv.Atoi(envOr("LEDGER_RETENTION_DAYS", "90"))
	if err != nil || days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}
