package controllers

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
)

func TestAdminAllocateSubscription(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "yearly@example.com")
	p := h.pkg(t, 1200)
	sub := h.yearlySubscription(t, u.ID, p.ID, models.SubscriptionActive)
	path := fmt.Sprintf("/admin/subscriptions/%d/allocate", sub.ID)

	status, env := h.do(t, fiber.MethodPost, path, 0, nil, nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var res allocation.Result
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	assert.Equal(t, allocation.StatusSuccess, res.Status)
	assert.Equal(t, "2025-03", res.Period)
	assert.Positive(t, res.Credits)

	balance, err := h.ledger.AvailableBalance(t.Context(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Credits, balance)

	status, env = h.do(t, fiber.MethodPost, path, 0, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, env.Message, "skipped")
	balance, err = h.ledger.AvailableBalance(t.Context(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Credits, balance)
}

func TestAdminAllocateSubscriptionRejections(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "cancelled@example.com")
	p := h.pkg(t, 1200)
	cancelled := h.yearlySubscription(t, u.ID, p.ID, models.SubscriptionCancelled)

	status, env := h.do(t, fiber.MethodPost, fmt.Sprintf("/admin/subscriptions/%d/allocate", cancelled.ID), 0, nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, env.Message, "not active")

	status, _ = h.do(t, fiber.MethodPost, "/admin/subscriptions/4242/allocate", 0, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = h.do(t, fiber.MethodPost, "/admin/subscriptions/abc/allocate", 0, nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAdminListEligibleAndRunMonthly(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "eligible@example.com")
	p := h.pkg(t, 1200)
	sub := h.yearlySubscription(t, u.ID, p.ID, models.SubscriptionActive)

	status, env := h.do(t, fiber.MethodGet, "/admin/subscriptions/eligible", 0, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	var views []subscriptionView
	require.NoError(t, json.Unmarshal(env.Payload, &views))
	require.Len(t, views, 1)
	assert.Equal(t, sub.ID, views[0].ID)

	status, env = h.do(t, fiber.MethodPost, "/admin/monthly-allocations/run", 0, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	var summary allocation.Summary
	require.NoError(t, json.Unmarshal(env.Payload, &summary))
	assert.Equal(t, 1, summary.Allocations.Successful)

	status, env = h.do(t, fiber.MethodGet, "/admin/subscriptions/eligible", 0, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Payload, &views))
	assert.Empty(t, views)
}

func TestAdminFailedAllocationsAndDiscrepancies(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, fiber.MethodGet, "/admin/failed-allocations?status=pending_retry", 0, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.Zero(t, env.Meta.TotalItems)

	status, _ = h.do(t, fiber.MethodGet, "/admin/failed-allocations?status=lost", 0, nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = h.do(t, fiber.MethodPost, "/admin/failed-allocations/77/retry", 0, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, env = h.do(t, fiber.MethodGet, "/admin/discrepancies", 0, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, env.Meta.Page)

	status, _ = h.do(t, fiber.MethodGet, "/admin/discrepancies?status=weird", 0, nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = h.do(t, fiber.MethodPost, "/admin/discrepancies/12/fix", 0, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAdminGrantCredits(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "grant@example.com")

	status, env := h.do(t, fiber.MethodPost, "/admin/credits/grant", 0, fiber.Map{"user_id": u.ID, "amount": 250, "reason": "goodwill"}, nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var entry ledger.Entry
	require.NoError(t, json.Unmarshal(env.Payload, &entry))
	assert.Equal(t, 250, entry.Transaction.Amount)
	assert.Equal(t, models.SourceSystem, entry.Transaction.TransactionSource)

	status, _ = h.do(t, fiber.MethodPost, "/admin/credits/grant", 0, fiber.Map{"user_id": u.ID}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = h.do(t, fiber.MethodPost, "/admin/credits/grant", 0, fiber.Map{"user_id": 555, "amount": 5}, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}
