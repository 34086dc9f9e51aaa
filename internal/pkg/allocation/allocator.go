// Package allocation grants monthly credits to yearly subscriptions, retries
// failed grants with backoff and audits past months for gaps.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/app/repository"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/events"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/metrics"
)

// ResultStatus is the outcome of one allocation attempt.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusSkipped ResultStatus = "skipped"
	StatusFailed  ResultStatus = "failed"
)

// Skip reasons.
const (
	ReasonAlreadyAllocated = "already_allocated_this_month"
	ReasonFirstMonth       = "first_month_of_subscription"
	ReasonNotEligible      = "not_eligible"
)

// Result reports what AllocateMonthly did for one subscription.
type Result struct {
	SubscriptionID     uint         `json:"subscription_id"`
	UserID             uint         `json:"user_id"`
	Period             string       `json:"allocation_period"`
	Status             ResultStatus `json:"status"`
	Reason             string       `json:"reason,omitempty"`
	Credits            int          `json:"credits_allocated,omitempty"`
	TransactionID      uint         `json:"transaction_id,omitempty"`
	AllocationID       string       `json:"allocation_id,omitempty"`
	FailedAllocationID uint         `json:"failed_allocation_id,omitempty"`
	Error              string       `json:"error,omitempty"`
}

// Engine books monthly allocations. It owns no state besides its collaborators.
type Engine struct {
	db          *gorm.DB
	ledger      *ledger.Service
	subs        repository.SubscriptionRepository
	packages    repository.PackageRepository
	publisher   events.Publisher
	now         func() time.Time
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithConcurrency bounds how many subscriptions a sweep processes at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an allocation engine.
func NewEngine(db *gorm.DB, ledgerSvc *ledger.Service, repos *repository.Repositories, opts ...Option) *Engine {
	e := &Engine{
		db:          db,
		ledger:      ledgerSvc,
		subs:        repos.Subscription,
		packages:    repos.Package,
		publisher:   events.Nop{},
		now:         time.Now,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now is the engine clock in UTC.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

func (e *Engine) repo(ctx context.Context) Repository {
	return NewRepository(e.db.WithContext(ctx))
}

// AllocationKey is the ledger idempotency key of one monthly grant.
func AllocationKey(subscriptionID uint, period string) string {
	return fmt.Sprintf("alloc:%d:%s", subscriptionID, period)
}

// Eligible lists active yearly subscriptions with monthly allocation that
// have not been allocated since the start of now's month.
func (e *Engine) Eligible(ctx context.Context, now time.Time) ([]models.UserSubscription, error) {
	return repository.NewSubscriptionRepository(e.db.WithContext(ctx)).ListEligibleForAllocation(MonthStart(now))
}

// GetSubscription loads one subscription.
func (e *Engine) GetSubscription(ctx context.Context, id uint) (*models.UserSubscription, error) {
	sub, err := repository.NewSubscriptionRepository(e.db.WithContext(ctx)).GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// AllocateAll runs AllocateMonthly for every eligible subscription. Each
// subscription is isolated: a failure is recorded for retry and the sweep
// carries on.
func (e *Engine) AllocateAll(ctx context.Context, now time.Time) ([]Result, error) {
	subs, err := e.Eligible(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list eligible subscriptions: %w", err)
	}
	log.Infof("[Allocation] %d subscriptions eligible for %s", len(subs), PeriodKey(now))

	results := make([]Result, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range subs {
		g.Go(func() error {
			res, err := e.AllocateMonthly(gctx, &subs[i], now)
			if err != nil {
				log.Errorf("[Allocation] Subscription %d: %v", subs[i].ID, err)
				res.Status = StatusFailed
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// AllocateMonthly grants the current month's credits to one subscription.
// Failures are queued for retry and reported as StatusFailed; the returned
// error is only set when even that bookkeeping failed.
func (e *Engine) AllocateMonthly(ctx context.Context, sub *models.UserSubscription, now time.Time) (Result, error) {
	now = now.UTC()
	period := PeriodKey(now)
	res := Result{SubscriptionID: sub.ID, UserID: sub.UserID, Period: period}

	if ineligibility(sub) != "" {
		res.Status, res.Reason = StatusSkipped, ReasonNotEligible
		return res, nil
	}
	if sub.LastCreditAllocationDate != nil && SameMonth(*sub.LastCreditAllocationDate, now) {
		res.Status, res.Reason = StatusSkipped, ReasonAlreadyAllocated
		return res, nil
	}
	if SameMonth(sub.StartedAt(), now) {
		res.Status, res.Reason = StatusSkipped, ReasonFirstMonth
		return res, nil
	}

	h, err := e.book(ctx, sub, period, now, models.AllocationTypeMonthly, nil)
	switch {
	case errors.Is(err, errAlreadyAllocated):
		res.Status, res.Reason = StatusSkipped, ReasonAlreadyAllocated
		return res, nil
	case err != nil:
		metrics.Allocations.WithLabelValues(string(StatusFailed)).Inc()
		res.Status = StatusFailed
		res.Error = err.Error()
		failed, qerr := e.queueFailure(ctx, sub, period, err, now)
		if qerr != nil {
			return res, fmt.Errorf("queue failed allocation: %w", qerr)
		}
		res.FailedAllocationID = failed.ID
		return res, nil
	}

	metrics.Allocations.WithLabelValues(string(StatusSuccess)).Inc()
	res.Status = StatusSuccess
	res.Credits = h.CreditsAllocated
	res.TransactionID = h.TransactionID
	res.AllocationID = h.AllocationID
	return res, nil
}

// book issues the period's credits and writes the history row in one unit of
// work. It returns errAlreadyAllocated when either idempotency key already
// exists, in which case nothing is written.
func (e *Engine) book(
	ctx context.Context,
	sub *models.UserSubscription,
	period string,
	now time.Time,
	typ models.AllocationType,
	extra models.Metadata,
) (*models.CreditAllocationHistory, error) {
	pkg, err := e.packages.GetByID(sub.PackageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("package %d: %w", sub.PackageID, ledger.ErrPackageNotFound)
		}
		return nil, fmt.Errorf("load package %d: %w", sub.PackageID, err)
	}
	if pkg.Credits <= 0 {
		return nil, fmt.Errorf("package %d grants no credits", pkg.ID)
	}

	meta := models.Metadata{
		"allocation_type":  string(typ),
		"billing_cycle":    string(sub.BillingCycle),
		"allocation_month": period,
		"subscription_id":  sub.ID,
	}
	for k, v := range extra {
		meta[k] = v
	}

	var hist models.CreditAllocationHistory
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, created, err := e.ledger.WithTx(tx).Issue(ctx, ledger.IssueInput{
			UserID:                sub.UserID,
			Amount:                pkg.Credits,
			Source:                models.SourceSubscriptionRenewal,
			Description:           fmt.Sprintf("Monthly credit allocation for %s", period),
			SubscriptionID:        &sub.ID,
			PackageID:             &pkg.ID,
			PlatformTransactionID: AllocationKey(sub.ID, period),
			ExpiresAt:             pkg.ExpiresAt(now),
			Metadata:              meta,
		})
		if err != nil {
			return err
		}
		if !created {
			return errAlreadyAllocated
		}

		hist = models.CreditAllocationHistory{
			UserID:           sub.UserID,
			SubscriptionID:   sub.ID,
			TransactionID:    entry.Transaction.ID,
			BalanceID:        entry.Balance.ID,
			AllocationID:     uuid.NewString(),
			CreditsAllocated: pkg.Credits,
			AllocationPeriod: period,
			AllocationType:   typ,
			Status:           models.AllocationSuccess,
		}
		ok, err := NewRepository(tx).CreateHistoryIfNotExists(&hist)
		if err != nil {
			return fmt.Errorf("create allocation history: %w", err)
		}
		if !ok {
			return errAlreadyAllocated
		}

		if period == PeriodKey(now) {
			err := repository.NewSubscriptionRepository(tx).UpdateFields(sub.ID, map[string]interface{}{
				"last_credit_allocation_date": now,
			})
			if err != nil {
				return fmt.Errorf("advance last allocation date: %w", err)
			}
			sub.LastCreditAllocationDate = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Allocation] Allocated %d credits to user %d for subscription %d (%s, %s)",
		hist.CreditsAllocated, sub.UserID, sub.ID, period, typ)
	events.PublishBestEffort(ctx, e.publisher, events.Event{
		Type:           events.TypeCreditsIssued,
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		TransactionID:  hist.TransactionID,
		Amount:         hist.CreditsAllocated,
		Data:           map[string]any{"allocation_period": period, "allocation_type": string(typ)},
		OccurredAt:     now,
	})
	return &hist, nil
}

// ineligibility names why sub cannot receive monthly allocations, or returns
// "" when it can.
func ineligibility(sub *models.UserSubscription) string {
	if sub.Status != models.SubscriptionActive {
		return string(sub.Status)
	}
	if !sub.AllocatesMonthly() {
		return "not allocated monthly"
	}
	return ""
}

// queueFailure records a failed allocation for the retry sweep. A second
// failure for the same subscription and period only refreshes the open row.
func (e *Engine) queueFailure(ctx context.Context, sub *models.UserSubscription, period string, cause error, now time.Time) (*models.FailedAllocation, error) {
	repo := e.repo(ctx)
	log.Warnf("[Allocation] Allocation for subscription %d (%s) failed: %v", sub.ID, period, cause)

	open, err := repo.FindOpenFailed(sub.ID, period)
	if err == nil {
		next := now.Add(RetryDelay(open.RetryCount))
		if err := repo.UpdateFailed(open.ID, map[string]interface{}{
			"last_error":    cause.Error(),
			"next_retry_at": next,
		}); err != nil {
			return nil, err
		}
		open.LastError = cause.Error()
		open.NextRetryAt = &next
		return open, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	next := now.Add(RetryDelay(0))
	f := &models.FailedAllocation{
		UserID:           sub.UserID,
		SubscriptionID:   sub.ID,
		AllocationPeriod: period,
		RetryCount:       0,
		MaxRetries:       MaxRetries,
		NextRetryAt:      &next,
		LastError:        cause.Error(),
		Status:           models.FailedAllocationPendingRetry,
	}
	if err := repo.CreateFailed(f); err != nil {
		return nil, err
	}
	events.PublishBestEffort(ctx, e.publisher, events.Event{
		Type:           events.TypeAllocationFailed,
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Data:           map[string]any{"allocation_period": period, "error": cause.Error()},
		OccurredAt:     now,
	})
	return f, nil
}

// UpdateNextAllocationDates recomputes next_credit_allocation_date of every
// active monthly-allocating subscription from its last allocation, or its
// period start when it was never allocated. It returns the number updated.
func (e *Engine) UpdateNextAllocationDates(ctx context.Context, now time.Time) (int, error) {
	subRepo := repository.NewSubscriptionRepository(e.db.WithContext(ctx))
	subs, err := subRepo.ListActiveMonthlyAllocating()
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, sub := range subs {
		ref := sub.LastCreditAllocationDate
		if ref == nil {
			ref = sub.CurrentPeriodStart
		}
		if ref == nil {
			log.Warnf("[Allocation] Subscription %d has no reference date, skipping", sub.ID)
			continue
		}
		next := NextAllocationDate(ref.UTC(), now.UTC())
		if err := subRepo.UpdateFields(sub.ID, map[string]interface{}{"next_credit_allocation_date": next}); err != nil {
			log.Errorf("[Allocation] Failed to update next allocation date of subscription %d: %v", sub.ID, err)
			continue
		}
		updated++
	}
	return updated, nil
}
