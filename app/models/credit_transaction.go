package models

import "time"

// CreditTransaction is an append-only journal entry. Rows are never updated
// or deleted once written.
//
// (transaction_source, platform_transaction_id) is unique so that a replayed
// invoice or payment cannot be booked twice. Rows without an external id keep
// the column NULL and do not collide.
type CreditTransaction struct {
	ID                    uint              `gorm:"primaryKey" json:"id"`
	UserID                uint              `gorm:"not null;index" json:"user_id"`
	TransactionType       TransactionType   `gorm:"type:varchar(16);not null;index" json:"transaction_type"`
	TransactionSource     TransactionSource `gorm:"type:varchar(32);not null;index:ux_credit_transactions_source_platform_tx,unique,priority:1" json:"transaction_source"`
	Amount                int               `gorm:"not null" json:"amount"`
	BalanceAfter          int               `gorm:"not null;default:0" json:"balance_after"`
	Description           string            `gorm:"type:varchar(255)" json:"description"`
	SubscriptionID        *uint             `gorm:"default:null;index" json:"subscription_id,omitempty"`
	PackageID             *uint             `gorm:"default:null" json:"package_id,omitempty"`
	PlatformTransactionID *string           `gorm:"type:varchar(191);default:null;index:ux_credit_transactions_source_platform_tx,unique,priority:2" json:"platform_transaction_id,omitempty"`
	RelatedTransactionID  string            `gorm:"type:varchar(64);index" json:"related_transaction_id,omitempty"`
	APIEndpoint           string            `gorm:"type:varchar(191)" json:"api_endpoint,omitempty"`
	CreditMetadata        Metadata          `gorm:"type:longtext" json:"credit_metadata"`
	CreatedAt             time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}
