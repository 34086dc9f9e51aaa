package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// CreditPackage is a catalog entry. Ledger code treats it as read-only.
//
// For yearly packages Credits is the monthly grant, not an annual total.
type CreditPackage struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	Name               string             `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	Credits            int                `gorm:"not null" json:"credits" validate:"gte=0"`
	Price              int64              `gorm:"not null;default:0" json:"price"` // cents
	IsSubscription     bool               `gorm:"default:false" json:"is_subscription"`
	SubscriptionPeriod SubscriptionPeriod `gorm:"type:varchar(16);not null;default:'none'" json:"subscription_period" validate:"oneof=monthly yearly none"`
	ExpirationDays     *int               `gorm:"default:null" json:"expiration_days,omitempty"`
	StripeProductID    string             `gorm:"type:varchar(191);index" json:"stripe_product_id,omitempty"`
	StripePriceID      string             `gorm:"type:varchar(191);index" json:"stripe_price_id,omitempty"`
	AppleProductID     string             `gorm:"type:varchar(191)" json:"apple_product_id,omitempty"`
	GoogleProductID    string             `gorm:"type:varchar(191)" json:"google_product_id,omitempty"`
	IsActive           bool               `gorm:"default:true" json:"is_active"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *CreditPackage) Validate() error {
	return validator.New().Struct(p)
}

// ExpiresAt returns the expiry for a lot issued at from, or nil when the
// package never expires.
func (p *CreditPackage) ExpiresAt(from time.Time) *time.Time {
	if p.ExpirationDays == nil {
		return nil
	}
	t := from.AddDate(0, 0, *p.ExpirationDays)
	return &t
}
