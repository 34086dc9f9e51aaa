package allocation

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/metrics"
)

// AllocationSummary counts the allocation step of a run.
type AllocationSummary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// RetrySummary counts the retry step of a run.
type RetrySummary struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Scheduled  int           `json:"scheduled"`
	Failed     int           `json:"failed"`
	Results    []RetryResult `json:"results"`
}

// Summary is the report of one monthly run.
type Summary struct {
	StartTime        time.Time          `json:"start_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	Allocations      AllocationSummary  `json:"allocations"`
	Retries          RetrySummary       `json:"retries"`
	Discrepancies    *DiscrepancyReport `json:"discrepancies"`
	UpdatedNextDates int                `json:"updated_next_dates"`
	Errors           []string           `json:"errors,omitempty"`
}

// Scheduler runs the monthly jobs in sequence.
type Scheduler struct {
	engine *Engine
	months int
}

// NewScheduler creates a scheduler over engine. months is the audit window;
// zero means DefaultAuditMonths.
func NewScheduler(engine *Engine, months int) *Scheduler {
	if months <= 0 {
		months = DefaultAuditMonths
	}
	return &Scheduler{engine: engine, months: months}
}

// Engine returns the underlying engine.
func (s *Scheduler) Engine() *Engine {
	return s.engine
}

// RunMonthly allocates, sweeps retries, audits and advances next allocation
// dates. A failing step is recorded in Errors and the run moves on.
func (s *Scheduler) RunMonthly(ctx context.Context, autoFix bool) *Summary {
	start := s.engine.Now()
	sum := &Summary{StartTime: start, Discrepancies: &DiscrepancyReport{Findings: []models.AllocationDiscrepancy{}}}
	log.Infof("[Allocation Scheduler] Monthly run started (auto_fix=%t)", autoFix)

	if a, err := s.Allocate(ctx); err != nil {
		sum.Errors = append(sum.Errors, "allocation: "+err.Error())
	} else {
		sum.Allocations = a
	}
	if r, err := s.Retry(ctx); err != nil {
		sum.Errors = append(sum.Errors, "retry: "+err.Error())
	} else {
		sum.Retries = r
	}
	if d, err := s.Audit(ctx, autoFix, s.months); err != nil {
		sum.Errors = append(sum.Errors, "discrepancies: "+err.Error())
	} else {
		sum.Discrepancies = d
	}
	if n, err := s.engine.UpdateNextAllocationDates(ctx, s.engine.Now()); err != nil {
		sum.Errors = append(sum.Errors, "next dates: "+err.Error())
	} else {
		sum.UpdatedNextDates = n
	}

	sum.EndTime = s.engine.Now()
	sum.DurationSeconds = sum.EndTime.Sub(start).Seconds()
	metrics.SweepDuration.WithLabelValues("monthly").Observe(sum.DurationSeconds)
	log.Infof("[Allocation Scheduler] Monthly run finished in %.2fs: %d allocated, %d skipped, %d failed, %d retried, %d discrepancies",
		sum.DurationSeconds, sum.Allocations.Successful, sum.Allocations.Skipped, sum.Allocations.Failed,
		sum.Retries.Total, sum.Discrepancies.Total)
	return sum
}

// Allocate runs the allocation step alone.
func (s *Scheduler) Allocate(ctx context.Context) (AllocationSummary, error) {
	out := AllocationSummary{Results: []Result{}}
	results, err := s.engine.AllocateAll(ctx, s.engine.Now())
	if err != nil {
		return out, err
	}
	out.Results = results
	out.Total = len(results)
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			out.Successful++
		case StatusSkipped:
			out.Skipped++
		default:
			out.Failed++
		}
	}
	return out, nil
}

// Retry runs the retry sweep alone.
func (s *Scheduler) Retry(ctx context.Context) (RetrySummary, error) {
	started := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("retry").Observe(time.Since(started).Seconds())
	}()

	out := RetrySummary{Results: []RetryResult{}}
	results, err := s.engine.Sweep(ctx, s.engine.Now())
	if err != nil {
		return out, err
	}
	out.Results = results
	out.Total = len(results)
	for _, r := range results {
		switch r.Status {
		case models.FailedAllocationResolved:
			out.Successful++
		case models.FailedAllocationPendingRetry:
			out.Scheduled++
		default:
			out.Failed++
		}
	}
	return out, nil
}

// Audit runs the discrepancy detector alone.
func (s *Scheduler) Audit(ctx context.Context, autoFix bool, months int) (*DiscrepancyReport, error) {
	started := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("discrepancy").Observe(time.Since(started).Seconds())
	}()
	return s.engine.Detect(ctx, s.engine.Now(), autoFix, months)
}

// UpdateNextDates runs the date advance alone.
func (s *Scheduler) UpdateNextDates(ctx context.Context) (int, error) {
	return s.engine.UpdateNextAllocationDates(ctx, s.engine.Now())
}
