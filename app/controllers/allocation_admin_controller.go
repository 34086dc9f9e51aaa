package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
)

// AllocationAdminController exposes the monthly allocation jobs to admins.
type AllocationAdminController struct {
	scheduler *allocation.Scheduler
	engine    *allocation.Engine
	ledger    *ledger.Service
}

func NewAllocationAdminController(scheduler *allocation.Scheduler, ledgerSvc *ledger.Service) *AllocationAdminController {
	return &AllocationAdminController{scheduler: scheduler, engine: scheduler.Engine(), ledger: ledgerSvc}
}

type subscriptionView struct {
	ID                       uint       `json:"id"`
	UserID                   uint       `json:"user_id"`
	PackageID                uint       `json:"package_id"`
	Status                   string     `json:"status"`
	BillingCycle             string     `json:"billing_cycle"`
	CreditAllocationCycle    string     `json:"credit_allocation_cycle"`
	LastCreditAllocationDate *time.Time `json:"last_credit_allocation_date"`
	NextCreditAllocationDate *time.Time `json:"next_credit_allocation_date"`
}

// HandleRunMonthlyAllocations runs allocation, retry sweep, audit and date
// advance. Step failures are part of the summary, not of the status code.
func (h *AllocationAdminController) HandleRunMonthlyAllocations(c *fiber.Ctx) error {
	autoFix := c.QueryBool("auto_fix", false)
	summary := h.scheduler.RunMonthly(c.UserContext(), autoFix)
	return respondOK(c, "Monthly allocation process completed successfully", summary)
}

func (h *AllocationAdminController) HandleListEligibleSubscriptions(c *fiber.Ctx) error {
	subs, err := h.engine.Eligible(c.UserContext(), h.engine.Now())
	if err != nil {
		return respondError(c, err)
	}
	views := make([]subscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, subscriptionView{
			ID:                       s.ID,
			UserID:                   s.UserID,
			PackageID:                s.PackageID,
			Status:                   string(s.Status),
			BillingCycle:             string(s.BillingCycle),
			CreditAllocationCycle:    string(s.CreditAllocationCycle),
			LastCreditAllocationDate: s.LastCreditAllocationDate,
			NextCreditAllocationDate: s.NextCreditAllocationDate,
		})
	}
	return respondOK(c, "Eligible subscriptions fetched successfully", views)
}

// HandleAllocateSubscription allocates the current month for one subscription.
func (h *AllocationAdminController) HandleAllocateSubscription(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return respondFail(c, fiber.StatusBadRequest, "Invalid subscription id")
	}
	sub, err := h.engine.GetSubscription(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if sub.Status != models.SubscriptionActive {
		return respondFail(c, fiber.StatusBadRequest, fmt.Sprintf("Subscription is not active (status: %s)", sub.Status))
	}
	if !sub.AllocatesMonthly() {
		return respondFail(c, fiber.StatusBadRequest, fmt.Sprintf(
			"Subscription is not eligible for monthly allocation (billing_cycle: %s, allocation_cycle: %s)",
			sub.BillingCycle, sub.CreditAllocationCycle))
	}

	res, err := h.engine.AllocateMonthly(c.UserContext(), sub, h.engine.Now())
	if err != nil {
		return respondError(c, err)
	}
	msg := "Credits allocated successfully for subscription"
	switch res.Status {
	case allocation.StatusSkipped:
		msg = "Allocation skipped: " + res.Reason
	case allocation.StatusFailed:
		msg = "Allocation failed and was queued for retry"
	}
	return respondOK(c, msg, res)
}

func (h *AllocationAdminController) HandleListFailedAllocations(c *fiber.Ctx) error {
	status := models.FailedAllocationStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		return respondFail(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid status filter %q", status))
	}
	page, pageSize := pageParams(c)
	rows, total, err := h.engine.ListFailed(c.UserContext(), status, page, pageSize)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, "Failed allocations fetched successfully", rows, page, pageSize, total)
}

// HandleRetryFailedAllocation retries one queue entry regardless of its
// next_retry_at. Resolved entries are rejected.
func (h *AllocationAdminController) HandleRetryFailedAllocation(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return respondFail(c, fiber.StatusBadRequest, "Invalid failed allocation id")
	}
	res, err := h.engine.RetryOne(c.UserContext(), id, h.engine.Now())
	if err != nil {
		return respondError(c, err)
	}
	log.Infof("[Allocation Retry] Manual retry of %d finished with status %s", id, res.Status)
	return respondOK(c, "Failed allocation retry processed successfully", res)
}

func (h *AllocationAdminController) HandleListDiscrepancies(c *fiber.Ctx) error {
	status := models.DiscrepancyStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		return respondFail(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid status filter %q", status))
	}
	page, pageSize := pageParams(c)
	rows, total, err := h.engine.ListDiscrepancies(c.UserContext(), status, page, pageSize)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, "Discrepancies fetched successfully", rows, page, pageSize, total)
}

// HandleFixDiscrepancy books the allocation behind one missing_allocation
// finding. A failed booking answers 500 with the updated finding as payload.
func (h *AllocationAdminController) HandleFixDiscrepancy(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return respondFail(c, fiber.StatusBadRequest, "Invalid discrepancy id")
	}
	d, err := h.engine.Fix(c.UserContext(), id)
	if err != nil {
		if d != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(Response{
				Success: false,
				Message: "Discrepancy fix failed: " + err.Error(),
				Payload: d,
			})
		}
		return respondError(c, err)
	}
	return respondOK(c, "Discrepancy fixed successfully", d)
}

// HandleGrantCredits issues system credits to a user.
func (h *AllocationAdminController) HandleGrantCredits(c *fiber.Ctx) error {
	var req GrantRequest
	if err := c.BodyParser(&req); err != nil {
		return respondFail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return respondFail(c, fiber.StatusBadRequest, err.Error())
	}
	entry, err := h.ledger.Grant(c.UserContext(), ledger.GrantInput{
		UserID:    req.UserID,
		PackageID: req.PackageID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Credits granted successfully", entry)
}
