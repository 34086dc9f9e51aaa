package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/billing"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/metrics"
)

// StripeWebhookController receives Stripe deliveries.
type StripeWebhookController struct {
	billing *billing.Service
	secret  string
	timeout time.Duration
}

func NewStripeWebhookController(svc *billing.Service, webhookSecret string) *StripeWebhookController {
	return &StripeWebhookController{billing: svc, secret: webhookSecret, timeout: 30 * time.Second}
}

// HandleStripeWebhook verifies, records and dispatches one delivery. Any
// non-2xx answer makes Stripe redeliver later.
func (h *StripeWebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	if signature == "" {
		metrics.WebhookEvents.WithLabelValues("unknown", "missing_signature").Inc()
		return respondFail(c, fiber.StatusBadRequest, "Missing Stripe-Signature header")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	event, parseErr := billing.ParseWebhook(rawBody, signature, h.secret)
	signatureValid := parseErr == nil
	eventType := string(event.Type)
	if eventType == "" {
		eventType = "unknown"
	}

	created, stored, err := h.billing.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		log.Errorf("[Billing] Persisting webhook event failed: %v", err)
		return respondFail(c, fiber.StatusInternalServerError, "Failed to persist webhook event")
	}
	if !signatureValid {
		if created {
			_ = h.billing.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		}
		log.Warnf("[Billing] Rejected Stripe webhook: %v", parseErr)
		metrics.WebhookEvents.WithLabelValues(eventType, "invalid_signature").Inc()
		return respondFail(c, fiber.StatusUnauthorized, "Invalid webhook signature")
	}
	if !created && stored.Done() {
		metrics.WebhookEvents.WithLabelValues(eventType, "duplicate").Inc()
		return c.Status(fiber.StatusOK).JSON(Response{
			Success: true,
			Message: "duplicate",
			Payload: fiber.Map{"event_id": event.ID},
		})
	}

	out, handleErr := h.billing.HandleEvent(ctx, event)
	if err := h.billing.MarkWebhookProcessed(ctx, stored.ID, handleErr); err != nil {
		log.Errorf("[Billing] Marking webhook event %s processed failed: %v", event.ID, err)
	}
	if handleErr != nil {
		log.Errorf("[Billing] Handling %s (%s) failed: %v", eventType, event.ID, handleErr)
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		return respondError(c, handleErr)
	}

	metrics.WebhookEvents.WithLabelValues(eventType, string(out.Status)).Inc()
	return respondOK(c, "Webhook processed", out)
}
