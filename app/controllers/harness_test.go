package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/app/repository"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/billing"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/usercontext"
)

const testWebhookSecret = "whsec_controller_test"

var testNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

type noFetcher struct{}

func (noFetcher) FetchSubscription(_ context.Context, id string) (*billing.SubscriptionSnapshot, error) {
	return nil, fmt.Errorf("unexpected fetch of %s", id)
}

type harness struct {
	db     *gorm.DB
	app    *fiber.App
	ledger *ledger.Service
	engine *allocation.Engine
}

// newHarness wires the controllers onto a bare app. The X-Test-User header
// stands in for the auth middleware.
func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	clock := func() time.Time { return testNow }
	repos := repository.NewRepositories(db)
	led := ledger.NewService(db, ledger.WithClock(clock))
	billingSvc := billing.NewService(db, led, repos, noFetcher{}, billing.WithClock(clock))
	engine := allocation.NewEngine(db, led, repos, allocation.WithClock(clock), allocation.WithConcurrency(1))
	scheduler := allocation.NewScheduler(engine, 3)

	webhooks := NewStripeWebhookController(billingSvc, testWebhookSecret)
	admin := NewAllocationAdminController(scheduler, led)
	credits := NewCreditController(led)

	app := fiber.New()
	app.Post("/webhooks/stripe", webhooks.HandleStripeWebhook)

	asUser := func(c *fiber.Ctx) error {
		id, _ := strconv.ParseUint(c.Get("X-Test-User"), 10, 64)
		usercontext.Set(c, usercontext.UserContext{UserID: uint(id), IsLoggedIn: id > 0})
		return c.Next()
	}
	cr := app.Group("/credits", asUser)
	cr.Get("/balance", credits.HandleGetBalance)
	cr.Get("/transactions", credits.HandleListTransactions)
	cr.Post("/deduct", credits.HandleDeduct)
	cr.Post("/transfer", credits.HandleTransfer)

	ad := app.Group("/admin")
	ad.Post("/monthly-allocations/run", admin.HandleRunMonthlyAllocations)
	ad.Get("/subscriptions/eligible", admin.HandleListEligibleSubscriptions)
	ad.Post("/subscriptions/:id/allocate", admin.HandleAllocateSubscription)
	ad.Get("/failed-allocations", admin.HandleListFailedAllocations)
	ad.Post("/failed-allocations/:id/retry", admin.HandleRetryFailedAllocation)
	ad.Get("/discrepancies", admin.HandleListDiscrepancies)
	ad.Post("/discrepancies/:id/fix", admin.HandleFixDiscrepancy)
	ad.Post("/credits/grant", admin.HandleGrantCredits)

	return &harness{db: db, app: app, ledger: led, engine: engine}
}

func (h *harness) user(t *testing.T, email string) models.User {
	t.Helper()
	u := models.User{Name: "Test User", Email: email, Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	require.NoError(t, h.db.Create(&u).Error)
	return u
}

func (h *harness) pkg(t *testing.T, credits int) models.CreditPackage {
	t.Helper()
	p := models.CreditPackage{
		Name:               fmt.Sprintf("Plan %d", credits),
		Credits:            credits,
		IsSubscription:     true,
		SubscriptionPeriod: models.PeriodYearly,
		IsActive:           true,
	}
	require.NoError(t, h.db.Create(&p).Error)
	return p
}

func (h *harness) yearlySubscription(t *testing.T, userID, packageID uint, status models.SubscriptionStatus) models.UserSubscription {
	t.Helper()
	start := testNow.AddDate(0, -1, 0)
	next := testNow.Add(-time.Hour)
	s := models.UserSubscription{
		UserID:                   userID,
		PackageID:                packageID,
		Platform:                 models.PlatformStripe,
		PlatformSubscriptionID:   fmt.Sprintf("sub_%d_%d", userID, packageID),
		Status:                   status,
		CurrentPeriodStart:       &start,
		BillingCycle:             models.BillingCycleYearly,
		CreditAllocationCycle:    models.AllocationCycleMonthly,
		NextCreditAllocationDate: &next,
	}
	require.NoError(t, h.db.Create(&s).Error)
	return s
}

func (h *harness) fund(t *testing.T, userID uint, amount int) {
	t.Helper()
	_, _, err := h.ledger.Issue(context.Background(), ledger.IssueInput{
		UserID:                userID,
		Amount:                amount,
		Source:                models.SourceStripe,
		PlatformTransactionID: fmt.Sprintf("pi_fund_%d_%d", userID, amount),
	})
	require.NoError(t, err)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
	Meta    *PageMeta       `json:"meta"`
}

func (h *harness) do(t *testing.T, method, path string, userID uint, body any, headers map[string]string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return resp.StatusCode, env
}

func signStripePayload(payload []byte, secret string, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", unix, hex.EncodeToString(mac.Sum(nil)))
}
