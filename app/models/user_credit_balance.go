package models

import "time"

// UserCreditBalance is a spendable lot created together with one credit
// transaction. A rollover supersedes lots instead of mutating their amounts.
type UserCreditBalance struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index:idx_user_credit_balances_user_active,priority:1" json:"user_id"`
	PackageID       *uint      `gorm:"default:null" json:"package_id,omitempty"`
	TransactionID   uint       `gorm:"not null;uniqueIndex" json:"transaction_id"`
	InitialAmount   int        `gorm:"not null" json:"initial_amount"`
	RemainingAmount int        `gorm:"not null" json:"remaining_amount"`
	ExpiresAt       *time.Time `gorm:"type:timestamp;default:null;index" json:"expires_at,omitempty"`
	IsActive        bool       `gorm:"not null;default:true;index:idx_user_credit_balances_user_active,priority:2" json:"is_active"`
	ConsumedAt      *time.Time `gorm:"type:timestamp;default:null" json:"consumed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Spendable reports whether the lot counts towards the available balance at now.
func (b *UserCreditBalance) Spendable(now time.Time) bool {
	if !b.IsActive || b.RemainingAmount <= 0 {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// CreditConsumptionLog records which lot paid for a debit.
type CreditConsumptionLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	BalanceID     uint      `gorm:"not null;index" json:"balance_id"`
	TransactionID uint      `gorm:"not null;index" json:"transaction_id"`
	Amount        int       `gorm:"not null" json:"amount"`
	APIEndpoint   string    `gorm:"type:varchar(191)" json:"api_endpoint,omitempty"`
	Metadata      Metadata  `gorm:"type:longtext" json:"metadata"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
