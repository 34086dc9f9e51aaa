package models

import "time"

// CreditAllocationHistory is the idempotency and audit record of a monthly
// allocation. One row per (subscription, period).
type CreditAllocationHistory struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	UserID           uint             `gorm:"not null;index" json:"user_id"`
	SubscriptionID   uint             `gorm:"not null;index:ux_credit_allocation_history_sub_period,unique,priority:1" json:"subscription_id"`
	TransactionID    uint             `gorm:"not null" json:"transaction_id"`
	BalanceID        uint             `gorm:"not null" json:"balance_id"`
	AllocationID     string           `gorm:"type:varchar(64);not null;uniqueIndex" json:"allocation_id"`
	CreditsAllocated int              `gorm:"not null" json:"credits_allocated"`
	AllocationPeriod string           `gorm:"type:varchar(7);not null;index:ux_credit_allocation_history_sub_period,unique,priority:2" json:"allocation_period"`
	AllocationType   AllocationType   `gorm:"type:varchar(32);not null;default:'monthly'" json:"allocation_type"`
	Status           AllocationStatus `gorm:"type:varchar(16);not null;default:'success';index" json:"status"`
	CreatedAt        time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}

// FailedAllocation is a retry-queue entry for an allocation that raised.
type FailedAllocation struct {
	ID               uint                   `gorm:"primaryKey" json:"id"`
	UserID           uint                   `gorm:"not null;index" json:"user_id"`
	SubscriptionID   uint                   `gorm:"not null;index" json:"subscription_id"`
	AllocationPeriod string                 `gorm:"type:varchar(7)" json:"allocation_period"`
	RetryCount       int                    `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries       int                    `gorm:"not null;default:5" json:"max_retries"`
	NextRetryAt      *time.Time             `gorm:"type:timestamp;default:null;index" json:"next_retry_at,omitempty"`
	LastError        string                 `gorm:"type:text" json:"last_error"`
	Status           FailedAllocationStatus `gorm:"type:varchar(16);not null;default:'pending_retry';index" json:"status"`
	ResolvedAt       *time.Time             `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	ResolutionNotes  string                 `gorm:"type:text" json:"resolution_notes"`
	CreatedAt        time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

// AllocationDiscrepancy is an audit finding from comparing expected and actual
// monthly allocations.
type AllocationDiscrepancy struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	UserID           uint              `gorm:"not null;index" json:"user_id"`
	SubscriptionID   uint              `gorm:"not null;index:ux_allocation_discrepancies_finding,unique,priority:1" json:"subscription_id"`
	DiscrepancyType  DiscrepancyType   `gorm:"type:varchar(32);not null;index:ux_allocation_discrepancies_finding,unique,priority:3" json:"discrepancy_type"`
	AllocationPeriod string            `gorm:"type:varchar(7);not null;index:ux_allocation_discrepancies_finding,unique,priority:2" json:"allocation_period"`
	ExpectedAmount   int               `gorm:"not null" json:"expected_amount"`
	ActualAmount     int               `gorm:"not null" json:"actual_amount"`
	Status           DiscrepancyStatus `gorm:"type:varchar(16);not null;default:'detected';index" json:"status"`
	ResolvedAt       *time.Time        `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	ResolutionNotes  string            `gorm:"type:text" json:"resolution_notes"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
