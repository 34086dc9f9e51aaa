package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/billing"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
)

// PageMeta describes one page of a list response.
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
	TotalItems int64 `json:"total_items"`
}

// Response is the envelope of every JSON response.
type Response struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Payload any       `json:"payload"`
	Meta    *PageMeta `json:"meta"`
}

func respondOK(c *fiber.Ctx, message string, payload any) error {
	return c.Status(fiber.StatusOK).JSON(Response{Success: true, Message: message, Payload: payload})
}

func respondPage(c *fiber.Ctx, message string, payload any, page, pageSize int, total int64) error {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return c.Status(fiber.StatusOK).JSON(Response{
		Success: true,
		Message: message,
		Payload: payload,
		Meta:    &PageMeta{Page: page, PageSize: pageSize, TotalPages: pages, TotalItems: total},
	})
}

func respondFail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Response{Success: false, Message: message})
}

// respondError maps domain errors to HTTP statuses. Unmapped errors are
// logged and reported as 500.
func respondError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return respondFail(c, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, ledger.ErrInvalidSource),
		errors.Is(err, billing.ErrInvalidEvent),
		errors.Is(err, allocation.ErrNotRetryable),
		errors.Is(err, allocation.ErrNotFixable):
		return fiber.StatusBadRequest
	case errors.Is(err, billing.ErrInvalidSignature):
		return fiber.StatusUnauthorized
	case errors.Is(err, ledger.ErrInsufficientCredits):
		return fiber.StatusPaymentRequired
	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, ledger.ErrPackageNotFound),
		errors.Is(err, allocation.ErrSubscriptionNotFound),
		errors.Is(err, allocation.ErrFailedNotFound),
		errors.Is(err, allocation.ErrDiscrepancyNotFound),
		errors.Is(err, billing.ErrSubscriptionNotFound),
		errors.Is(err, billing.ErrCustomerNotLinked):
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

// pageParams reads page and page_size, clamped to the ledger defaults.
func pageParams(c *fiber.Ctx) (int, int) {
	return ledger.NormalizePage(c.QueryInt("page", 1), c.QueryInt("page_size", 0))
}

func idParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
