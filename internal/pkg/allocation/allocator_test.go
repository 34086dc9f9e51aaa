package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/events"
)

func TestAllocateMonthlyBooksFullPackageCredits(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, 800)
	s := f.sub(t, p.ID, time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC), ptr(time.Date(2025, time.February, 10, 8, 0, 0, 0, time.UTC)))

	res, err := f.engine.AllocateMonthly(context.Background(), &s, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "2025-03", res.Period)
	assert.Equal(t, 800, res.Credits)
	assert.NotZero(t, res.TransactionID)
	assert.NotEmpty(t, res.AllocationID)

	var txn models.CreditTransaction
	require.NoError(t, f.db.First(&txn, res.TransactionID).Error)
	assert.Equal(t, models.SourceSubscriptionRenewal, txn.TransactionSource)
	assert.Equal(t, 800, txn.Amount)
	require.NotNil(t, txn.PlatformTransactionID)
	assert.Equal(t, AllocationKey(s.ID, "2025-03"), *txn.PlatformTransactionID)
	assert.Equal(t, "monthly", txn.CreditMetadata.String("allocation_type"))
	assert.Equal(t, "2025-03", txn.CreditMetadata.String("allocation_month"))
	assert.Equal(t, "yearly", txn.CreditMetadata.String("billing_cycle"))

	var lot models.UserCreditBalance
	require.NoError(t, f.db.Where("transaction_id = ?", txn.ID).First(&lot).Error)
	assert.Equal(t, 800, lot.RemainingAmount)
	require.NotNil(t, lot.ExpiresAt)
	assert.True(t, lot.ExpiresAt.Equal(testNow.AddDate(0, 0, 30)))

	var hist models.CreditAllocationHistory
	require.NoError(t, f.db.Where("subscription_id = ?", s.ID).First(&hist).Error)
	assert.Equal(t, "2025-03", hist.AllocationPeriod)
	assert.Equal(t, txn.ID, hist.TransactionID)
	assert.Equal(t, lot.ID, hist.BalanceID)

	var reloaded models.UserSubscription
	require.NoError(t, f.db.First(&reloaded, s.ID).Error)
	require.NotNil(t, reloaded.LastCreditAllocationDate)
	assert.True(t, reloaded.LastCreditAllocationDate.Equal(testNow))

	issued := f.rec.OfType(events.TypeCreditsIssued)
	require.Len(t, issued, 1)
	assert.Equal(t, s.ID, issued[0].SubscriptionID)
}

func TestAllocateMonthlySkipsWhenAllocatedThisMonth(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, 800)
	s := f.sub(t, p.ID, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), ptr(time.Date(2025, time.March, 1, 0, 5, 0, 0, time.UTC)))

	res, err := f.engine.AllocateMonthly(context.Background(), &s, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, ReasonAlreadyAllocated, res.Reason)

	assert.Zero(t, f.count(t, &models.CreditTransaction{}))
	assert.Zero(t, f.count(t, &models.UserCreditBalance{}))
	assert.Zero(t, f.count(t, &models.CreditAllocationHistory{}))
	assert.Zero(t, f.count(t, &models.FailedAllocation{}))
}

func TestAllocateMonthlySkipsFirstMonth(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, 800)
	s := f.sub(t, p.ID, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC), nil)

	res, err := f.engine.AllocateMonthly(context.Background(), &s, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, ReasonFirstMonth, res.Reason)
	assert.Zero(t, f.count(t, &models.CreditTransaction{}))
}

func TestAllocateMonthlySkipsIneligible(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, 800)
	s := f.sub(t, p.ID, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), nil)
	s.Status = models.SubscriptionCancelled

	res, err := f.engine.AllocateMonthly(context.Background(), &s, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, ReasonNotEligible, res.Reason)
}

func TestAllocateMonthlyHistoryConflictWritesNothing(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, 800)
	s := f.sub(t, p.ID, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), ptr(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)))
	f.history(t, s, "2025-03", 800)

	res, err := f.engine.AllocateMonthly(context.Background(), &s, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, ReasonAlreadyAllocated, res.Reason)

	// The ledger row booked inside the unit of work was rolled back.
	assert.Zero(t, f.count(t, &models.CreditTransaction{}))
	assert.Zero(t, f.count(t, &models.UserCreditBalance{}))
	assert.EqualValues(t, 1, f.count(t, &models.CreditAllocationHistory{}))
}

func TestAllocateMonthlyMissingPackageQueuesRetry(t *testing.T) {
	f := newFixture(t)
	s := f.sub(t, 4242, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), nil)

	res, err := f.engine.AllocateMonthly(context.Background(), &s, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "package not found")
	require.NotZero(t, res.FailedAllocationID)

	var failed models.FailedAllocation
	require.NoError(t, f.db.First(&failed, res.FailedAllocationID).Error)
	assert.Equal(t, 0, failed.RetryCount)
	assert.Equal(t, MaxRetries, failed.MaxRetries)
	assert.Equal(t, models.FailedAllocationPendingRetry, failed.Status)
	assert.Equal(t, "2025-03", failed.AllocationPeriod)
	require.NotNil(t, failed.NextRetryAt)
	assert.WithinDuration(t, testNow.Add(time.Hour), *failed.NextRetryAt, time.Second)
	assert.Zero(t, f.count(t, &models.CreditTransaction{}))
	assert.Len(t, f.rec.OfType(events.TypeAllocationFailed), 1)

	// A second failure in the same month refreshes the open row.
	again, err := f.engine.AllocateMonthly(context.Background(), &s, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, res.FailedAllocationID, again.FailedAllocationID)
	assert.EqualValues(t, 1, f.count(t, &models.FailedAllocation{}))

	var refreshed models.FailedAllocation
	require.NoError(t, f.db.First(&refreshed, res.FailedAllocationID).Error)
	require.NotNil(t, refreshed.NextRetryAt)
	assert.WithinDuration(t, testNow.Add(time.Minute+time.Hour), *refreshed.NextRetryAt, time.Second)
}

func TestEligibleFiltersSubscriptions(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, 800)
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	never := f.sub(t, p.ID, start, nil)
	lastMonth := f.sub(t, p.ID, start, ptr(time.Date(2025, time.February, 28, 23, 0, 0, 0, time.UTC)))
	f.sub(t, p.ID, start, ptr(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)))

	monthly := f.sub(t, p.ID, start, nil)
	require.NoError(t, f.db.Model(&monthly).Update("billing_cycle", models.BillingCycleMonthly).Error)
	cancelled := f.sub(t, p.ID, start, nil)
	require.NoError(t, f.db.Model(&cancelled).Update("status", models.SubscriptionCancelled).Error)

	subs, err := f.engine.Eligible(context.Background(), testNow)
	require.NoError(t, err)
	var ids []uint
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []uint{never.ID, lastMonth.ID}, ids)
}

func TestAllocateAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, 500)
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	ok := f.sub(t, p.ID, start, nil)
	broken := f.sub(t, 777, start, nil)

	results, err := f.engine.AllocateAll(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[uint]Result{}
	for _, r := range results {
		byID[r.SubscriptionID] = r
	}
	assert.Equal(t, StatusSuccess, byID[ok.ID].Status)
	assert.Equal(t, StatusFailed, byID[broken.ID].Status)
	assert.EqualValues(t, 1, f.count(t, &models.CreditAllocationHistory{}))
	assert.EqualValues(t, 1, f.count(t, &models.FailedAllocation{}))

	// Running again books nothing new.
	results, err = f.engine.AllocateAll(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, broken.ID, results[0].SubscriptionID)
	assert.EqualValues(t, 1, f.count(t, &models.CreditAllocationHistory{}))
}

func TestUpdateNextAllocationDates(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, 500)

	fromLast := f.sub(t, p.ID, time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC),
		ptr(time.Date(2025, time.January, 31, 9, 0, 0, 0, time.UTC)))
	fromStart := f.sub(t, p.ID, time.Date(2024, time.August, 31, 9, 0, 0, 0, time.UTC), nil)
	noRef := f.sub(t, p.ID, testNow, nil)
	require.NoError(t, f.db.Model(&models.UserSubscription{}).Where("id = ?", noRef.ID).
		Update("current_period_start", nil).Error)

	n, err := f.engine.UpdateNextAllocationDates(context.Background(), time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var gotLast models.UserSubscription
	require.NoError(t, f.db.First(&gotLast, fromLast.ID).Error)
	require.NotNil(t, gotLast.NextCreditAllocationDate)
	assert.True(t, gotLast.NextCreditAllocationDate.Equal(time.Date(2025, time.February, 28, 9, 0, 0, 0, time.UTC)))

	// Sep 30 2024 is long past, so the date advances one more month.
	var gotStart models.UserSubscription
	require.NoError(t, f.db.First(&gotStart, fromStart.ID).Error)
	require.NotNil(t, gotStart.NextCreditAllocationDate)
	assert.True(t, gotStart.NextCreditAllocationDate.Equal(time.Date(2024, time.October, 30, 9, 0, 0, 0, time.UTC)))

	var gotNoRef models.UserSubscription
	require.NoError(t, f.db.First(&gotNoRef, noRef.ID).Error)
	assert.Nil(t, gotNoRef.NextCreditAllocationDate)
}
