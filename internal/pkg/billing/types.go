package billing

import (
	"time"

	"github.com/ManuelReschke/CreditLedger/app/models"
)

// SubscriptionSnapshot is the provider's current view of a subscription.
type SubscriptionSnapshot struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	Metadata           map[string]string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// OutcomeStatus tells what a handler did with an event.
type OutcomeStatus string

const (
	OutcomeProcessed OutcomeStatus = "processed"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeIgnored   OutcomeStatus = "ignored"
)

// Outcome is the handler result echoed in the webhook response payload.
type Outcome struct {
	EventType string        `json:"event_type"`
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`

	SubscriptionID        uint `json:"subscription_id,omitempty"`
	TransactionID         uint `json:"transaction_id,omitempty"`
	Credits               int  `json:"credits,omitempty"`
	RolloverAmount        int  `json:"rollover_amount,omitempty"`
	RolloverTransactionID uint `json:"rollover_transaction_id,omitempty"`
}

// Skip reasons.
const (
	ReasonAlreadyProcessed     = "already_processed"
	ReasonNotSubscriptionInv   = "not_subscription_invoice"
	ReasonInvoicePaymentIntent = "invoice_payment_intent"
	ReasonUnhandledEventType   = "unhandled_event_type"
)

func subscriptionStatus(raw string) models.SubscriptionStatus {
	if st, ok := models.ParseSubscriptionStatus(raw); ok {
		return st
	}
	return models.SubscriptionIncomplete
}
