package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/CreditLedger/app/controllers"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/metrics"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/middleware"
)

// Dependencies are the handlers and middlewares the routes are built from.
type Dependencies struct {
	Auth     *middleware.Authenticator
	Webhooks *controllers.StripeWebhookController
	Admin    *controllers.AllocationAdminController
	Credits  *controllers.CreditController

	// LimiterStorage is optional; nil keeps limiter state in memory.
	LimiterStorage fiber.Storage
	RateLimit      int
}

type ApiRouter struct {
	deps Dependencies
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Get("/metrics", metrics.Handler())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	limit := h.deps.RateLimit
	if limit <= 0 {
		limit = 120
	}
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		// Webhook deliveries are never limited.
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/v1/webhooks/")
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Post("/webhooks/stripe", h.deps.Webhooks.HandleStripeWebhook)

	credits := v1.Group("/credits", h.deps.Auth.RequireUser())
	credits.Get("/balance", h.deps.Credits.HandleGetBalance)
	credits.Get("/transactions", h.deps.Credits.HandleListTransactions)
	credits.Post("/deduct", h.deps.Credits.HandleDeduct)
	credits.Post("/transfer", h.deps.Credits.HandleTransfer)

	admin := v1.Group("/admin", h.deps.Auth.RequireAdminAPI())
	admin.Post("/monthly-allocations/run", h.deps.Admin.HandleRunMonthlyAllocations)
	admin.Get("/subscriptions/eligible", h.deps.Admin.HandleListEligibleSubscriptions)
	admin.Post("/subscriptions/:id/allocate", h.deps.Admin.HandleAllocateSubscription)
	admin.Get("/failed-allocations", h.deps.Admin.HandleListFailedAllocations)
	admin.Post("/failed-allocations/:id/retry", h.deps.Admin.HandleRetryFailedAllocation)
	admin.Get("/discrepancies", h.deps.Admin.HandleListDiscrepancies)
	admin.Post("/discrepancies/:id/fix", h.deps.Admin.HandleFixDiscrepancy)
	admin.Post("/credits/grant", h.deps.Admin.HandleGrantCredits)
}
