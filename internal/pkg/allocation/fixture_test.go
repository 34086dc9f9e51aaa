package allocation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/app/repository"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/events"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
)

var testNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	engine *Engine
	rec    *events.Recorder
	nextID uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	rec := &events.Recorder{}
	clock := func() time.Time { return testNow }
	svc := ledger.NewService(db, ledger.WithClock(clock))
	engine := NewEngine(db, svc, repository.NewRepositories(db), WithClock(clock), WithPublisher(rec), WithConcurrency(2))
	return &fixture{db: db, engine: engine, rec: rec, nextID: 1}
}

func (f *fixture) pkg(t *testing.T, credits int) models.CreditPackage {
	t.Helper()
	days := 30
	p := models.CreditPackage{
		Name:               fmt.Sprintf("Yearly %d", credits),
		Credits:            credits,
		IsSubscription:     true,
		SubscriptionPeriod: models.PeriodYearly,
		ExpirationDays:     &days,
		IsActive:           true,
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

// sub creates an active yearly subscription with monthly allocation.
func (f *fixture) sub(t *testing.T, packageID uint, start time.Time, last *time.Time) models.UserSubscription {
	t.Helper()
	s := models.UserSubscription{
		UserID:                   f.nextID,
		PackageID:                packageID,
		Platform:                 models.PlatformStripe,
		PlatformSubscriptionID:   fmt.Sprintf("sub_%d", f.nextID),
		Status:                   models.SubscriptionActive,
		CurrentPeriodStart:       &start,
		BillingCycle:             models.BillingCycleYearly,
		CreditAllocationCycle:    models.AllocationCycleMonthly,
		LastCreditAllocationDate: last,
	}
	f.nextID++
	require.NoError(t, f.db.Create(&s).Error)
	return s
}

func (f *fixture) history(t *testing.T, s models.UserSubscription, period string, credits int) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.CreditAllocationHistory{
		UserID:           s.UserID,
		SubscriptionID:   s.ID,
		TransactionID:    999,
		BalanceID:        999,
		AllocationID:     fmt.Sprintf("seed-%d-%s", s.ID, period),
		CreditsAllocated: credits,
		AllocationPeriod: period,
		AllocationType:   models.AllocationTypeMonthly,
		Status:           models.AllocationSuccess,
	}).Error)
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func ptr(t time.Time) *time.Time { return &t }
