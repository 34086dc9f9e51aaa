package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/events"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/metrics"
)

// DefaultAuditMonths is how many trailing months Detect inspects.
const DefaultAuditMonths = 3

// DiscrepancyReport is the outcome of one detection run.
type DiscrepancyReport struct {
	Total     int                            `json:"total"`
	Fixed     int                            `json:"fixed"`
	FixFailed int                            `json:"fix_failed"`
	Findings  []models.AllocationDiscrepancy `json:"results"`
}

// Detect compares expected against booked allocations for the trailing
// months (current month included) of every active monthly-allocating
// subscription. The month a subscription started and earlier months are not
// expected, matching AllocateMonthly's first-month rule. Open findings are
// returned; with autoFix, missing allocations are booked on the spot.
func (e *Engine) Detect(ctx context.Context, now time.Time, autoFix bool, months int) (*DiscrepancyReport, error) {
	now = now.UTC()
	if months <= 0 {
		months = DefaultAuditMonths
	}
	subs, err := e.subs.ListActiveMonthlyAllocating()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	report := &DiscrepancyReport{Findings: []models.AllocationDiscrepancy{}}
	periods := TrailingPeriods(now, months)
	oldest := periods[len(periods)-1]
	for i := range subs {
		sub := &subs[i]
		findings, err := e.detectOne(ctx, sub, periods, oldest)
		if err != nil {
			log.Errorf("[Allocation Audit] Subscription %d: %v", sub.ID, err)
			continue
		}
		for _, d := range findings {
			if autoFix && d.DiscrepancyType == models.DiscrepancyMissingAllocation {
				fixed, err := e.fix(ctx, sub, &d, now)
				if err != nil {
					report.FixFailed++
				} else if fixed.Status == models.DiscrepancyFixed {
					report.Fixed++
				}
				d = *fixed
			}
			report.Findings = append(report.Findings, d)
		}
	}
	report.Total = len(report.Findings)
	log.Infof("[Allocation Audit] %d open discrepancies over %d subscriptions (%d fixed)", report.Total, len(subs), report.Fixed)
	return report, nil
}

func (e *Engine) detectOne(ctx context.Context, sub *models.UserSubscription, periods []string, oldest string) ([]models.AllocationDiscrepancy, error) {
	pkg, err := e.packages.GetByID(sub.PackageID)
	if err != nil {
		return nil, fmt.Errorf("load package %d: %w", sub.PackageID, err)
	}
	repo := e.repo(ctx)
	actual, err := repo.SumAllocatedByPeriod(sub.ID, oldest)
	if err != nil {
		return nil, err
	}

	started := PeriodKey(sub.StartedAt().UTC())
	var out []models.AllocationDiscrepancy
	for _, period := range periods {
		if period <= started {
			continue
		}
		got, ok := actual[period]
		var typ models.DiscrepancyType
		switch {
		case !ok:
			typ = models.DiscrepancyMissingAllocation
		case got != pkg.Credits:
			typ = models.DiscrepancyIncorrectAmount
		default:
			continue
		}

		d := models.AllocationDiscrepancy{
			UserID:           sub.UserID,
			SubscriptionID:   sub.ID,
			DiscrepancyType:  typ,
			AllocationPeriod: period,
			ExpectedAmount:   pkg.Credits,
			ActualAmount:     got,
			Status:           models.DiscrepancyDetected,
		}
		created, err := repo.CreateDiscrepancyIfNotExists(&d)
		if err != nil {
			return nil, fmt.Errorf("record discrepancy %s: %w", period, err)
		}
		if created {
			metrics.Discrepancies.WithLabelValues(string(typ), string(models.DiscrepancyDetected)).Inc()
			log.Warnf("[Allocation Audit] %s for subscription %d in %s (expected %d, actual %d)",
				typ, sub.ID, period, pkg.Credits, got)
		} else {
			existing, err := repo.FindDiscrepancy(sub.ID, period, typ)
			if err != nil {
				return nil, err
			}
			if existing.Status == models.DiscrepancyFixed {
				continue
			}
			d = *existing
		}
		out = append(out, d)
	}
	return out, nil
}

// Fix books the missing allocation behind one finding.
func (e *Engine) Fix(ctx context.Context, id uint) (*models.AllocationDiscrepancy, error) {
	d, err := e.repo(ctx).GetDiscrepancy(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiscrepancyNotFound
		}
		return nil, err
	}
	if d.DiscrepancyType != models.DiscrepancyMissingAllocation || d.Status == models.DiscrepancyFixed {
		return nil, ErrNotFixable
	}
	sub, err := e.GetSubscription(ctx, d.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if why := ineligibility(sub); why != "" {
		return nil, fmt.Errorf("%w: subscription %d is %s", ErrNotFixable, sub.ID, why)
	}
	return e.fix(ctx, sub, d, e.Now())
}

// ListDiscrepancies returns one page of findings, optionally filtered by status.
func (e *Engine) ListDiscrepancies(ctx context.Context, status models.DiscrepancyStatus, page, pageSize int) ([]models.AllocationDiscrepancy, int64, error) {
	return e.repo(ctx).ListDiscrepancies(status, page, pageSize)
}

// fix always returns the updated finding; err reports a failed booking.
func (e *Engine) fix(ctx context.Context, sub *models.UserSubscription, d *models.AllocationDiscrepancy, now time.Time) (*models.AllocationDiscrepancy, error) {
	out := *d
	h, bookErr := e.book(ctx, sub, d.AllocationPeriod, now, models.AllocationTypeDiscrepancyFix,
		models.Metadata{"discrepancy_id": d.ID, "allocation_period": d.AllocationPeriod})

	fields := map[string]interface{}{}
	switch {
	case errors.Is(bookErr, errAlreadyAllocated):
		bookErr = nil
		out.Status = models.DiscrepancyFixed
		out.ResolutionNotes = fmt.Sprintf("Already allocated for %s", d.AllocationPeriod)
	case bookErr != nil:
		out.Status = models.DiscrepancyFixFailed
		out.ResolutionNotes = fmt.Sprintf("Auto-fix failed: %v", bookErr)
	default:
		out.Status = models.DiscrepancyFixed
		out.ActualAmount = h.CreditsAllocated
		out.ResolutionNotes = fmt.Sprintf("Auto-fixed. Transaction ID: %d", h.TransactionID)
		fields["actual_amount"] = h.CreditsAllocated
	}
	fields["status"] = out.Status
	fields["resolution_notes"] = out.ResolutionNotes
	if out.Status == models.DiscrepancyFixed {
		out.ResolvedAt = &now
		fields["resolved_at"] = now
	}
	if err := e.repo(ctx).UpdateDiscrepancy(d.ID, fields); err != nil {
		return &out, fmt.Errorf("update discrepancy %d: %w", d.ID, err)
	}

	metrics.Discrepancies.WithLabelValues(string(d.DiscrepancyType), string(out.Status)).Inc()
	if bookErr != nil {
		log.Errorf("[Allocation Audit] Fix of discrepancy %d failed: %v", d.ID, bookErr)
		return &out, bookErr
	}
	log.Infof("[Allocation Audit] Discrepancy %d fixed: %s", d.ID, out.ResolutionNotes)
	events.PublishBestEffort(ctx, e.publisher, events.Event{
		Type:           events.TypeAllocationFixed,
		UserID:         d.UserID,
		SubscriptionID: d.SubscriptionID,
		Amount:         out.ActualAmount,
		Data:           map[string]any{"discrepancy_id": d.ID, "allocation_period": d.AllocationPeriod},
		OccurredAt:     now,
	})
	return &out, nil
}
