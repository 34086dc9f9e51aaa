package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository backed by GORM.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByID(id uint) (*models.UserSubscription, error) {
	var s models.UserSubscription
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionRepository) GetByPlatformID(platform models.SubscriptionPlatform, platformSubscriptionID string) (*models.UserSubscription, error) {
	var s models.UserSubscription
	err := r.db.Where("platform = ? AND platform_subscription_id = ?", platform, platformSubscriptionID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListEligibleForAllocation returns active yearly subscriptions with monthly
// allocation that were not allocated since monthStart.
func (r *subscriptionRepository) ListEligibleForAllocation(monthStart time.Time) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.
		Where("status = ? AND billing_cycle = ? AND credit_allocation_cycle = ?",
			models.SubscriptionActive, models.BillingCycleYearly, models.AllocationCycleMonthly).
		Where("last_credit_allocation_date IS NULL OR last_credit_allocation_date < ?", monthStart).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

// ListActiveMonthlyAllocating returns every active yearly subscription with
// monthly allocation regardless of when it was last allocated.
func (r *subscriptionRepository) ListActiveMonthlyAllocating() ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.
		Where("status = ? AND billing_cycle = ? AND credit_allocation_cycle = ?",
			models.SubscriptionActive, models.BillingCycleYearly, models.AllocationCycleMonthly).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.UserSubscription{}).Where("id = ?", id).Updates(fields).Error
}
