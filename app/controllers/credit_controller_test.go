package controllers

import (
	"encoding/json"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
)

func TestCreditBalanceAndDeduct(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "deduct@example.com")
	h.fund(t, u.ID, 100)

	status, env := h.do(t, fiber.MethodPost, "/credits/deduct", u.ID, fiber.Map{
		"amount":       30,
		"api_endpoint": "/v1/generate",
	}, nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var res ledger.DeductResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	assert.Equal(t, 70, res.Remaining)
	assert.Equal(t, 30, res.Transaction.Amount)

	status, env = h.do(t, fiber.MethodGet, "/credits/balance", u.ID, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	var details ledger.BalanceDetails
	require.NoError(t, json.Unmarshal(env.Payload, &details))
	assert.Equal(t, 70, details.CurrentBalance)
	assert.Equal(t, 100, details.TotalCreditsEarned)
	assert.Equal(t, 30, details.TotalCreditsUsed)
}

func TestCreditDeductRejections(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "poor@example.com")
	h.fund(t, u.ID, 10)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{name: "insufficient", body: fiber.Map{"amount": 11, "api_endpoint": "/v1/x"}, status: fiber.StatusPaymentRequired},
		{name: "zero amount", body: fiber.Map{"amount": 0, "api_endpoint": "/v1/x"}, status: fiber.StatusBadRequest},
		{name: "missing endpoint", body: fiber.Map{"amount": 1}, status: fiber.StatusBadRequest},
		{name: "malformed", body: []byte(`{"amount":`), status: fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := h.do(t, fiber.MethodPost, "/credits/deduct", u.ID, tt.body, nil)
			assert.Equal(t, tt.status, status, env.Message)
			assert.False(t, env.Success)
		})
	}

	balance, err := h.ledger.AvailableBalance(t.Context(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestCreditTransfer(t *testing.T) {
	h := newHarness(t)
	from := h.user(t, "from@example.com")
	to := h.user(t, "to@example.com")
	h.fund(t, from.ID, 50)

	status, env := h.do(t, fiber.MethodPost, "/credits/transfer", from.ID, fiber.Map{"to_user_id": to.ID, "amount": 20, "note": "thanks"}, nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var res ledger.TransferResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	assert.NotEmpty(t, res.TransferID)
	assert.Equal(t, 20, res.Credit.Transaction.Amount)

	status, _ = h.do(t, fiber.MethodPost, "/credits/transfer", from.ID, fiber.Map{"to_user_id": from.ID, "amount": 1}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = h.do(t, fiber.MethodPost, "/credits/transfer", from.ID, fiber.Map{"to_user_id": 9999, "amount": 1}, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestCreditTransactionsPaging(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "history@example.com")
	h.fund(t, u.ID, 40)
	for i := 0; i < 3; i++ {
		_, err := h.ledger.Deduct(t.Context(), ledger.DeductInput{UserID: u.ID, Amount: 1, APIEndpoint: "/v1/x"})
		require.NoError(t, err)
	}

	status, env := h.do(t, fiber.MethodGet, "/credits/transactions?page=1&page_size=2", u.ID, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(4), env.Meta.TotalItems)
	assert.Equal(t, 2, env.Meta.TotalPages)
	var rows []models.CreditTransaction
	require.NoError(t, json.Unmarshal(env.Payload, &rows))
	assert.Len(t, rows, 2)

	status, env = h.do(t, fiber.MethodGet, "/credits/transactions?type=debit", u.ID, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, int64(3), env.Meta.TotalItems)

	status, _ = h.do(t, fiber.MethodGet, "/credits/transactions?type=bogus", u.ID, nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = h.do(t, fiber.MethodGet, "/credits/transactions?from=yesterday", u.ID, nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
