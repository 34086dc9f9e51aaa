package models

import "time"

// UserSubscription is one user's relationship to one package on one platform.
// At most one active subscription per (user, platform) is expected; callers check.
type UserSubscription struct {
	ID                       uint                 `gorm:"primaryKey" json:"id"`
	UserID                   uint                 `gorm:"not null;index" json:"user_id"`
	PackageID                uint                 `gorm:"not null;index" json:"package_id"`
	Platform                 SubscriptionPlatform `gorm:"type:varchar(20);not null;index:ux_user_subscriptions_platform_subid,unique,priority:1" json:"platform"`
	PlatformSubscriptionID   string               `gorm:"type:varchar(191);not null;index:ux_user_subscriptions_platform_subid,unique,priority:2" json:"platform_subscription_id"`
	Status                   SubscriptionStatus   `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart       *time.Time           `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd         *time.Time           `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd        bool                 `gorm:"default:false" json:"cancel_at_period_end"`
	CreditsPerPeriod         int                  `gorm:"not null;default:0" json:"credits_per_period"`
	BillingCycle             BillingCycle         `gorm:"type:varchar(16);not null;default:'monthly';index" json:"billing_cycle"`
	CreditAllocationCycle    AllocationCycle      `gorm:"type:varchar(16);not null;default:'monthly'" json:"credit_allocation_cycle"`
	NextCreditAllocationDate *time.Time           `gorm:"type:timestamp;default:null" json:"next_credit_allocation_date,omitempty"`
	LastCreditAllocationDate *time.Time           `gorm:"type:timestamp;default:null" json:"last_credit_allocation_date,omitempty"`
	PreviousPackageID        *uint                `gorm:"default:null" json:"previous_package_id,omitempty"`
	UpgradeEffectiveDate     *time.Time           `gorm:"type:timestamp;default:null" json:"upgrade_effective_date,omitempty"`
	CreatedAt                time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// AllocatesMonthly reports whether the subscription takes part in the
// monthly allocation engine.
func (s *UserSubscription) AllocatesMonthly() bool {
	return s.BillingCycle == BillingCycleYearly && s.CreditAllocationCycle == AllocationCycleMonthly
}

// StartedAt is the best known start of the subscription.
func (s *UserSubscription) StartedAt() time.Time {
	if s.CurrentPeriodStart != nil {
		return *s.CurrentPeriodStart
	}
	return s.CreatedAt
}
