package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CreditLedger/app/controllers"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/apidocs"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/bootstrap"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/cache"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/database"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/env"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/middleware"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("[Server] Shutting down")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Errorf("[Server] Shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the HTTP server. The returned func stops background
// workers and flushes the event publisher.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()

	services := bootstrap.NewServices(database.GetDB(), bootstrap.NewPublisher(), bootstrap.StripeFetcher())

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/creditledger to project root
		"../../../", // Fallback
	}
	basePath := "./"
	for _, path := range basePaths {
		if _, err := os.Stat(path + apidocs.DefaultPath); err == nil {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if _, err := apidocs.Load(context.Background(), basePath+apidocs.DefaultPath); err != nil {
		log.Warnf("[Server] %v", err)
	}
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + apidocs.DefaultPath,
		Path:     "v1",
	}))

	deps := router.Dependencies{
		Auth:      middleware.NewAuthenticator(env.GetEnv("JWT_SECRET", ""), services.Repositories),
		Webhooks:  controllers.NewStripeWebhookController(services.Billing, env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		Admin:     controllers.NewAllocationAdminController(services.Scheduler, services.Ledger),
		Credits:   controllers.NewCreditController(services.Ledger),
		RateLimit: env.GetEnvInt("API_RATE_LIMIT", 120),
	}
	if env.GetEnv("LIMITER_STORAGE", "memory") == "redis" {
		deps.LimiterStorage = cache.NewLimiterStorage()
	}

	// ROUTER
	router.InstallRouter(app, deps)

	var manager *allocation.Manager
	if env.GetEnvBool("ALLOCATION_SCHEDULER_ENABLED", false) {
		manager = allocation.NewManager(services.Scheduler, cache.NewLocker(cache.SetupCache()), allocation.ManagerConfig{
			RetryInterval:   env.GetEnvDuration("ALLOCATION_RETRY_INTERVAL", 15*time.Minute),
			MonthlyInterval: env.GetEnvDuration("ALLOCATION_MONTHLY_INTERVAL", 24*time.Hour),
			AutoFix:         env.GetEnvBool("ALLOCATION_AUTO_FIX", false),
		})
		manager.Start()
	}

	shutdown := func() {
		if manager != nil {
			manager.Stop()
		}
		if err := services.Publisher.Close(); err != nil {
			log.Warnf("[Events] Closing publisher failed: %v", err)
		}
	}
	return app, shutdown
}
