package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/usercontext"
)

// CreditController serves the authenticated user's own account.
type CreditController struct {
	ledger *ledger.Service
}

func NewCreditController(ledgerSvc *ledger.Service) *CreditController {
	return &CreditController{ledger: ledgerSvc}
}

func (h *CreditController) HandleGetBalance(c *fiber.Ctx) error {
	details, err := h.ledger.BalanceDetails(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Balance fetched successfully", details)
}

// HandleListTransactions supports type, source, from and to (RFC 3339) filters.
func (h *CreditController) HandleListTransactions(c *fiber.Ctx) error {
	f := ledger.HistoryFilter{
		UserID: usercontext.GetUserID(c),
		Type:   models.TransactionType(c.Query("type")),
		Source: models.TransactionSource(c.Query("source")),
	}
	if f.Type != "" && !f.Type.IsValid() {
		return respondFail(c, fiber.StatusBadRequest, "Invalid transaction type")
	}
	if f.Source != "" && !f.Source.IsValid() {
		return respondFail(c, fiber.StatusBadRequest, "Invalid transaction source")
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := c.Query(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return respondFail(c, fiber.StatusBadRequest, "Invalid '"+p.key+"' timestamp, expected RFC 3339")
		}
		t = t.UTC()
		*p.dst = &t
	}
	f.Page, f.PageSize = pageParams(c)

	items, total, err := h.ledger.History(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, "Transactions fetched successfully", items, f.Page, f.PageSize, total)
}

func (h *CreditController) HandleDeduct(c *fiber.Ctx) error {
	var req DeductRequest
	if err := c.BodyParser(&req); err != nil {
		return respondFail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return respondFail(c, fiber.StatusBadRequest, err.Error())
	}
	res, err := h.ledger.Deduct(c.UserContext(), ledger.DeductInput{
		UserID:      usercontext.GetUserID(c),
		Amount:      req.Amount,
		APIEndpoint: req.APIEndpoint,
		Description: req.Description,
		Metadata:    models.Metadata(req.Metadata),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Credits deducted successfully", res)
}

func (h *CreditController) HandleTransfer(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return respondFail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return respondFail(c, fiber.StatusBadRequest, err.Error())
	}
	res, err := h.ledger.Transfer(c.UserContext(), ledger.TransferInput{
		FromUserID: usercontext.GetUserID(c),
		ToUserID:   req.ToUserID,
		Amount:     req.Amount,
		Note:       req.Note,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Credits transferred successfully", res)
}
