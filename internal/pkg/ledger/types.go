package ledger

import (
	"time"

	"github.com/ManuelReschke/CreditLedger/app/models"
)

// IssueInput describes one credit to append to the journal together with its lot.
type IssueInput struct {
	UserID      uint
	Amount      int
	Source      models.TransactionSource
	Description string

	SubscriptionID *uint
	PackageID      *uint
	// PlatformTransactionID is the idempotency key for the source: an invoice,
	// payment intent or allocation id. Empty means no key.
	PlatformTransactionID string
	RelatedTransactionID  string
	ExpiresAt             *time.Time
	Metadata              models.Metadata
}

// AuditInput is a journal row without credit movement.
type AuditInput struct {
	UserID                uint
	Source                models.TransactionSource
	Description           string
	SubscriptionID        *uint
	PlatformTransactionID string
	Metadata              models.Metadata
}

// Entry is a journal row and the lot it created.
type Entry struct {
	Transaction models.CreditTransaction `json:"transaction"`
	Balance     models.UserCreditBalance `json:"balance"`
}

// RolloverInput carries the lots to supersede and where the new lot belongs.
type RolloverInput struct {
	UserID uint
	// ParentTransactionID is the renewal transaction the rollover belongs to.
	ParentTransactionID   uint
	Lots                  []models.UserCreditBalance
	ExpiresAt             *time.Time
	SubscriptionID        *uint
	PackageID             *uint
	PlatformTransactionID string
	// Metadata is copied onto the rollover transaction next to the rollover tags.
	Metadata models.Metadata
}

// RolloverResult reports what a rollover did. Entry is nil when nothing was rolled.
type RolloverResult struct {
	Amount     int    `json:"amount"`
	Entry      *Entry `json:"entry,omitempty"`
	Superseded []uint `json:"superseded_balance_ids"`
}

// DeductInput is a usage debit.
type DeductInput struct {
	UserID      uint
	Amount      int
	APIEndpoint string
	Description string
	Metadata    models.Metadata
}

// DeductResult reports the debit row and the lots it drew from.
type DeductResult struct {
	Transaction models.CreditTransaction      `json:"transaction"`
	Consumed    []models.CreditConsumptionLog `json:"consumed"`
	Remaining   int                           `json:"remaining_balance"`
}

// TransferInput moves credits between two users.
type TransferInput struct {
	FromUserID uint
	ToUserID   uint
	Amount     int
	Note       string
}

// TransferResult holds both sides of a transfer.
type TransferResult struct {
	TransferID string                   `json:"transfer_id"`
	Debit      models.CreditTransaction `json:"debit"`
	Credit     Entry                    `json:"credit"`
}

// GrantInput is an admin grant, either from a package or an explicit amount.
type GrantInput struct {
	UserID    uint
	PackageID *uint
	Amount    int
	Reason    string
}

// BalanceDetails is the account view of one user.
type BalanceDetails struct {
	UserID             uint                       `json:"user_id"`
	CurrentBalance     int                        `json:"current_balance"`
	TotalCreditsEarned int                        `json:"total_credits_earned"`
	TotalCreditsUsed   int                        `json:"total_credits_used"`
	ActiveLots         []models.UserCreditBalance `json:"active_lots"`
}

// HistoryFilter selects a page of journal rows.
type HistoryFilter struct {
	UserID   uint
	Type     models.TransactionType
	Source   models.TransactionSource
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
