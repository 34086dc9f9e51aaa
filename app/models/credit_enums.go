package models

// TransactionType is the direction of a journal entry.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeDebit:
		return true
	}
	return false
}

// TransactionSource records where a journal entry originated.
type TransactionSource string

const (
	SourceStripe              TransactionSource = "stripe"
	SourceInAppPurchase       TransactionSource = "in_app_purchase"
	SourceP2PTransfer         TransactionSource = "p2p_transfer"
	SourceSubscriptionRenewal TransactionSource = "subscription_renewal"
	SourceAPIUsage            TransactionSource = "api_usage"
	SourceSystem              TransactionSource = "system"
)

func (s TransactionSource) IsValid() bool {
	switch s {
	case SourceStripe, SourceInAppPurchase, SourceP2PTransfer, SourceSubscriptionRenewal, SourceAPIUsage, SourceSystem:
		return true
	}
	return false
}

// SubscriptionPlatform is the external billing provider of a subscription.
type SubscriptionPlatform string

const (
	PlatformStripe SubscriptionPlatform = "stripe"
	PlatformApple  SubscriptionPlatform = "apple"
	PlatformGoogle SubscriptionPlatform = "google"
)

func (p SubscriptionPlatform) IsValid() bool {
	switch p {
	case PlatformStripe, PlatformApple, PlatformGoogle:
		return true
	}
	return false
}

// SubscriptionPeriod is the billing period configured on a package.
type SubscriptionPeriod string

const (
	PeriodMonthly SubscriptionPeriod = "monthly"
	PeriodYearly  SubscriptionPeriod = "yearly"
	PeriodNone    SubscriptionPeriod = "none"
)

func (p SubscriptionPeriod) IsValid() bool {
	switch p {
	case PeriodMonthly, PeriodYearly, PeriodNone:
		return true
	}
	return false
}

// BillingCycle is how often the provider charges a subscription.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// BillingCycleForPeriod maps a package period to the subscription billing cycle.
// Packages without a period bill monthly.
func BillingCycleForPeriod(p SubscriptionPeriod) BillingCycle {
	switch p {
	case PeriodYearly:
		return BillingCycleYearly
	case PeriodMonthly, PeriodNone:
		return BillingCycleMonthly
	}
	return BillingCycleMonthly
}

// AllocationCycle is how often credits are granted. Only monthly is modelled.
type AllocationCycle string

const (
	AllocationCycleMonthly AllocationCycle = "monthly"
)

// SubscriptionStatus mirrors provider subscription states.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionCancelled         SubscriptionStatus = "cancelled"
	SubscriptionDeleted           SubscriptionStatus = "deleted"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionPaused            SubscriptionStatus = "paused"
)

// ParseSubscriptionStatus normalizes a provider status. Stripe spells
// "canceled" with one l.
func ParseSubscriptionStatus(raw string) (SubscriptionStatus, bool) {
	switch s := SubscriptionStatus(raw); s {
	case SubscriptionActive, SubscriptionCancelled, SubscriptionDeleted, SubscriptionIncomplete,
		SubscriptionIncompleteExpired, SubscriptionPastDue, SubscriptionTrialing, SubscriptionUnpaid,
		SubscriptionPaused:
		return s, true
	case "canceled":
		return SubscriptionCancelled, true
	}
	return "", false
}

// AllocationStatus is the outcome stored on an allocation history row.
type AllocationStatus string

const (
	AllocationSuccess AllocationStatus = "success"
	AllocationFailed  AllocationStatus = "failed"
)

// AllocationType tells which path produced an allocation.
type AllocationType string

const (
	AllocationTypeMonthly        AllocationType = "monthly"
	AllocationTypeDiscrepancyFix AllocationType = "discrepancy_fix"
	AllocationTypeManualRetry    AllocationType = "manual_retry"
)

// FailedAllocationStatus is the state of a retry-queue entry.
type FailedAllocationStatus string

const (
	FailedAllocationPendingRetry FailedAllocationStatus = "pending_retry"
	FailedAllocationResolved     FailedAllocationStatus = "resolved"
	FailedAllocationFailed       FailedAllocationStatus = "failed"
)

func (s FailedAllocationStatus) IsValid() bool {
	switch s {
	case FailedAllocationPendingRetry, FailedAllocationResolved, FailedAllocationFailed:
		return true
	}
	return false
}

// DiscrepancyType classifies an allocation audit finding.
type DiscrepancyType string

const (
	DiscrepancyMissingAllocation DiscrepancyType = "missing_allocation"
	DiscrepancyIncorrectAmount   DiscrepancyType = "incorrect_amount"
)

// DiscrepancyStatus is the lifecycle of an audit finding.
type DiscrepancyStatus string

const (
	DiscrepancyDetected  DiscrepancyStatus = "detected"
	DiscrepancyFixed     DiscrepancyStatus = "fixed"
	DiscrepancyFixFailed DiscrepancyStatus = "fix_failed"
)

func (s DiscrepancyStatus) IsValid() bool {
	switch s {
	case DiscrepancyDetected, DiscrepancyFixed, DiscrepancyFixFailed:
		return true
	}
	return false
}
