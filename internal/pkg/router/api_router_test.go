package router

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditLedger/app/controllers"
	"github.com/ManuelReschke/CreditLedger/app/repository"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/apidocs"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/billing"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/middleware"
)

type nopFetcher struct{}

func (nopFetcher) FetchSubscription(context.Context, string) (*billing.SubscriptionSnapshot, error) {
	return nil, billing.ErrSubscriptionNotFound
}

func newTestApp(t *testing.T, rateLimit int) *fiber.App {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	led := ledger.NewService(db)
	engine := allocation.NewEngine(db, led, repos)

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Auth:      middleware.NewAuthenticator("router-secret", repos),
		Webhooks:  controllers.NewStripeWebhookController(billing.NewService(db, led, repos, nopFetcher{}), "whsec_router"),
		Admin:     controllers.NewAllocationAdminController(allocation.NewScheduler(engine, 3), led),
		Credits:   controllers.NewCreditController(led),
		RateLimit: rateLimit,
	})
	return app
}

func status(t *testing.T, app *fiber.App, method, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, strings.NewReader("{}")), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestRoutesAreInstalled(t *testing.T) {
	app := newTestApp(t, 0)

	assert.Equal(t, fiber.StatusOK, status(t, app, fiber.MethodGet, "/health"))
	assert.Equal(t, fiber.StatusOK, status(t, app, fiber.MethodGet, "/metrics"))
	assert.Equal(t, fiber.StatusBadRequest, status(t, app, fiber.MethodPost, "/api/v1/webhooks/stripe"))
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, fiber.MethodGet, "/api/v1/credits/balance"))
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, fiber.MethodPost, "/api/v1/admin/monthly-allocations/run"))
	assert.Equal(t, fiber.StatusNotFound, status(t, app, fiber.MethodGet, "/api/v1/unknown"))
}

func TestRateLimitSkipsWebhooks(t *testing.T) {
	app := newTestApp(t, 2)

	for i := 0; i < 2; i++ {
		assert.Equal(t, fiber.StatusUnauthorized, status(t, app, fiber.MethodGet, "/api/v1/credits/balance"))
	}
	assert.Equal(t, fiber.StatusTooManyRequests, status(t, app, fiber.MethodGet, "/api/v1/credits/balance"))
	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusBadRequest, status(t, app, fiber.MethodPost, "/api/v1/webhooks/stripe"))
	}
}

func TestDocumentedOperationsAreRouted(t *testing.T) {
	app := newTestApp(t, 0)
	doc, err := apidocs.Load(context.Background(), "../../../"+apidocs.DefaultPath)
	require.NoError(t, err)

	routed := map[string]bool{}
	for _, r := range app.GetRoutes(true) {
		routed[r.Method+" "+r.Path] = true
	}
	for _, op := range apidocs.Operations(doc, "/api/v1") {
		assert.True(t, routed[strings.ReplaceAll(op, "{id}", ":id")], "%s is documented but not routed", op)
	}
}
