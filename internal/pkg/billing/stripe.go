package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ParseWebhook verifies the Stripe-Signature header against secret and
// decodes the event. Events signed for another API version are accepted:
// only the fields this service reads are decoded.
func ParseWebhook(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || strings.TrimSpace(secret) == "" {
		return stripe.Event{}, ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// SubscriptionFetcher loads the provider's current subscription state.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, id string) (*SubscriptionSnapshot, error)
}

// UnconfiguredFetcher is used when no Stripe key is configured.
type UnconfiguredFetcher struct{}

func (UnconfiguredFetcher) FetchSubscription(_ context.Context, id string) (*SubscriptionSnapshot, error) {
	return nil, fmt.Errorf("stripe api key not configured, cannot fetch subscription %s", id)
}

// StripeFetcher reads subscriptions through the Stripe API. Each call is
// bounded by a timeout and transient failures are retried with exponential
// backoff.
type StripeFetcher struct {
	api         *client.API
	callTimeout time.Duration
	maxElapsed  time.Duration
}

// NewStripeFetcher creates a fetcher for the given secret key.
func NewStripeFetcher(secretKey string) *StripeFetcher {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeFetcher{
		api:         sc,
		callTimeout: 10 * time.Second,
		maxElapsed:  30 * time.Second,
	}
}

// FetchSubscription implements SubscriptionFetcher.
func (f *StripeFetcher) FetchSubscription(ctx context.Context, id string) (*SubscriptionSnapshot, error) {
	var sub *stripe.Subscription
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
		defer cancel()

		params := &stripe.SubscriptionParams{}
		params.Context = callCtx
		s, err := f.api.Subscriptions.Get(id, params)
		if err != nil {
			if isRetryableStripeError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		sub = s
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = f.maxElapsed
	notify := func(err error, wait time.Duration) {
		log.Warnf("[Billing] Fetching Stripe subscription %s failed, retrying in %s: %v", id, wait, err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, fmt.Errorf("fetch stripe subscription %s: %w", id, err)
	}
	return SnapshotFromStripe(sub), nil
}

// isRetryableStripeError reports whether a Stripe call may succeed when
// repeated: rate limits, server errors and network failures.
func isRetryableStripeError(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

// SnapshotFromStripe converts a Stripe subscription object.
func SnapshotFromStripe(s *stripe.Subscription) *SubscriptionSnapshot {
	if s == nil {
		return nil
	}
	snap := &SubscriptionSnapshot{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		Metadata:           s.Metadata,
	}
	if s.Customer != nil {
		snap.CustomerID = s.Customer.ID
	}
	if snap.Metadata == nil {
		snap.Metadata = map[string]string{}
	}
	return snap
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
