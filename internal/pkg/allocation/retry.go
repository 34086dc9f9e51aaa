package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/metrics"
)

// RetryResult reports one retried queue row.
type RetryResult struct {
	FailedAllocationID uint                          `json:"failed_allocation_id"`
	SubscriptionID     uint                          `json:"subscription_id"`
	Period             string                        `json:"allocation_period"`
	Status             models.FailedAllocationStatus `json:"status"`
	RetryCount         int                           `json:"retry_count"`
	NextRetryAt        *time.Time                    `json:"next_retry_at,omitempty"`
	TransactionID      uint                          `json:"transaction_id,omitempty"`
	Notes              string                        `json:"resolution_notes,omitempty"`
	Error              string                        `json:"error,omitempty"`
}

// Sweep retries every queued allocation that is due at now. Rows are
// processed independently; an error on one row is logged and the sweep
// continues.
func (e *Engine) Sweep(ctx context.Context, now time.Time) ([]RetryResult, error) {
	now = now.UTC()
	rows, err := e.repo(ctx).ListDueFailed(now, MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("list due allocations: %w", err)
	}
	if len(rows) > 0 {
		log.Infof("[Allocation Retry] %d failed allocations due", len(rows))
	}

	results := make([]RetryResult, 0, len(rows))
	for i := range rows {
		res, err := e.retry(ctx, &rows[i], now, models.AllocationTypeMonthly)
		if err != nil {
			log.Errorf("[Allocation Retry] Failed allocation %d: %v", rows[i].ID, err)
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// RetryOne is the manual admin retry. It ignores next_retry_at and may
// reopen a row the sweep gave up on; resolved rows are rejected.
func (e *Engine) RetryOne(ctx context.Context, id uint, now time.Time) (*RetryResult, error) {
	row, err := e.repo(ctx).GetFailed(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFailedNotFound
		}
		return nil, err
	}
	if row.Status == models.FailedAllocationResolved {
		return nil, ErrNotRetryable
	}
	res, err := e.retry(ctx, row, now.UTC(), models.AllocationTypeManualRetry)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListFailed returns one page of the retry queue, optionally filtered by status.
func (e *Engine) ListFailed(ctx context.Context, status models.FailedAllocationStatus, page, pageSize int) ([]models.FailedAllocation, int64, error) {
	return e.repo(ctx).ListFailed(status, page, pageSize)
}

func (e *Engine) retry(ctx context.Context, row *models.FailedAllocation, now time.Time, typ models.AllocationType) (RetryResult, error) {
	res := RetryResult{
		FailedAllocationID: row.ID,
		SubscriptionID:     row.SubscriptionID,
		Period:             row.AllocationPeriod,
	}
	period := row.AllocationPeriod
	if period == "" {
		period = PeriodKey(now)
		res.Period = period
	}

	var (
		outcome RetryOutcome
		notes   string
		cause   error
	)
	sub, err := e.GetSubscription(ctx, row.SubscriptionID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		outcome, cause = RetryPermanent, err
		notes = fmt.Sprintf("Permanently failed: subscription %d not found", row.SubscriptionID)
	case err != nil:
		return res, err
	case ineligibility(sub) != "":
		why := ineligibility(sub)
		outcome, cause = RetryPermanent, fmt.Errorf("subscription %d is %s", sub.ID, why)
		notes = fmt.Sprintf("Permanently failed: subscription %d is %s", sub.ID, why)
	default:
		h, err := e.book(ctx, sub, period, now, typ, models.Metadata{"failed_allocation_id": row.ID})
		switch {
		case errors.Is(err, errAlreadyAllocated):
			outcome = RetrySucceeded
			notes = fmt.Sprintf("Already allocated for %s", period)
		case err != nil:
			outcome, cause = RetryErrored, err
		default:
			outcome = RetrySucceeded
			res.TransactionID = h.TransactionID
			notes = fmt.Sprintf("Successfully allocated on retry. Transaction ID: %d", h.TransactionID)
		}
	}

	next := NextRetryState(StateOf(row), outcome, now)
	fields := map[string]interface{}{
		"status":        next.Status,
		"retry_count":   next.RetryCount,
		"max_retries":   next.MaxRetries,
		"next_retry_at": next.NextRetryAt,
	}
	if cause != nil {
		fields["last_error"] = cause.Error()
		res.Error = cause.Error()
	}
	if next.Status == models.FailedAllocationFailed && notes == "" {
		notes = fmt.Sprintf("Max retries (%d) reached", next.MaxRetries)
	}
	if notes != "" {
		fields["resolution_notes"] = notes
	}
	if next.Status != models.FailedAllocationPendingRetry {
		fields["resolved_at"] = now
	}
	if err := e.repo(ctx).UpdateFailed(row.ID, fields); err != nil {
		return res, fmt.Errorf("update failed allocation: %w", err)
	}

	metrics.Retries.WithLabelValues(string(next.Status)).Inc()
	switch next.Status {
	case models.FailedAllocationResolved:
		log.Infof("[Allocation Retry] Failed allocation %d resolved", row.ID)
	case models.FailedAllocationFailed:
		log.Warnf("[Allocation Retry] Failed allocation %d gave up after %d retries: %v", row.ID, next.RetryCount, cause)
	default:
		log.Infof("[Allocation Retry] Failed allocation %d rescheduled for %s (retry %d)", row.ID, next.NextRetryAt.Format(time.RFC3339), next.RetryCount)
	}

	res.Status = next.Status
	res.RetryCount = next.RetryCount
	res.NextRetryAt = next.NextRetryAt
	res.Notes = notes
	return res, nil
}
