// Package events publishes ledger events for downstream consumers.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	TopicLedger = "credit_ledger_events"

	TypeCreditsIssued      = "credits.issued"
	TypeCreditsRolledOver  = "credits.rolled_over"
	TypeCreditsDeducted    = "credits.deducted"
	TypeCreditsTransferred = "credits.transferred"
	TypeAllocationFailed   = "allocation.failed"
	TypeAllocationFixed    = "allocation.fixed"
	TypeSubscriptionSync   = "subscription.synced"
)

// Event is the JSON body written to the bus.
type Event struct {
	Type           string         `json:"type"`
	UserID         uint           `json:"user_id"`
	SubscriptionID uint           `json:"subscription_id,omitempty"`
	TransactionID  uint           `json:"transaction_id,omitempty"`
	Amount         int            `json:"amount,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Publisher sends events after the unit of work that produced them committed.
// Publish errors never roll back ledger state.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
func (Nop) Close() error                            { return nil }

// Recorder keeps events in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
