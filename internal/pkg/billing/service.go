package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/app/repository"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/events"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
)

// Stripe event types handled by HandleEvent.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventPaymentIntentSucceeded  = "payment_intent.succeeded"
)

// Service turns Stripe webhook events into subscription state and ledger entries.
type Service struct {
	db        *gorm.DB
	repo      Repository
	ledger    *ledger.Service
	users     repository.UserRepository
	packages  repository.PackageRepository
	subs      repository.SubscriptionRepository
	fetcher   SubscriptionFetcher
	publisher events.Publisher
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a billing service. fetcher is used to read the current
// subscription period when an invoice is paid.
func NewService(
	db *gorm.DB,
	ledgerSvc *ledger.Service,
	repos *repository.Repositories,
	fetcher SubscriptionFetcher,
	opts ...Option,
) *Service {
	s := &Service{
		db:        db,
		repo:      NewRepository(db),
		ledger:    ledgerSvc,
		users:     repos.User,
		packages:  repos.Package,
		subs:      repos.Subscription,
		fetcher:   fetcher,
		publisher: events.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// UpsertBillingAccount links a Stripe customer to a local user.
func (s *Service) UpsertBillingAccount(ctx context.Context, userID uint, customerID, email string) (*models.BillingAccount, error) {
	_ = ctx
	cid := strings.TrimSpace(customerID)
	if userID == 0 || cid == "" {
		return nil, errors.New("user_id and customer_id are required")
	}
	account := &models.BillingAccount{
		UserID:            userID,
		Provider:          models.BillingProviderStripe,
		ProviderAccountID: cid,
		Email:             strings.TrimSpace(email),
	}
	if err := s.repo.UpsertBillingAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// resolveUser maps a Stripe customer to a user. Customers without a linked
// account fall back to metadata["user_id"], which then gets linked.
func (s *Service) resolveUser(ctx context.Context, customerID string, metadata map[string]string) (uint, error) {
	cid := strings.TrimSpace(customerID)
	if cid != "" {
		acct, err := s.repo.GetBillingAccountByProviderAccountID(models.BillingProviderStripe, cid)
		if err == nil {
			return acct.UserID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}

	raw := strings.TrimSpace(metadata["user_id"])
	if raw == "" {
		return 0, fmt.Errorf("%w: customer %q", ErrCustomerNotLinked, cid)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: metadata user_id %q", ErrInvalidEvent, raw)
	}
	user, err := s.users.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("user %d: %w", id, ledger.ErrUserNotFound)
		}
		return 0, err
	}
	if cid != "" {
		if _, err := s.UpsertBillingAccount(ctx, user.ID, cid, user.Email); err != nil {
			return 0, fmt.Errorf("link customer %s: %w", cid, err)
		}
		log.Infof("[Billing] Linked Stripe customer %s to user %d", cid, user.ID)
	}
	return user.ID, nil
}

func (s *Service) packageFromMetadata(metadata map[string]string) (*models.CreditPackage, error) {
	raw := strings.TrimSpace(metadata["package_id"])
	if raw == "" {
		return nil, fmt.Errorf("%w: package_id missing in metadata", ErrInvalidEvent)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: package_id %q", ErrInvalidEvent, raw)
	}
	return s.getPackage(uint(id))
}

func (s *Service) getPackage(id uint) (*models.CreditPackage, error) {
	pkg, err := s.packages.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("package %d: %w", id, ledger.ErrPackageNotFound)
		}
		return nil, err
	}
	return pkg, nil
}

func (s *Service) localSubscription(stripeSubID string) (*models.UserSubscription, error) {
	sub, err := s.subs.GetByPlatformID(models.PlatformStripe, stripeSubID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, stripeSubID)
		}
		return nil, err
	}
	return sub, nil
}

// HandleEvent dispatches a verified event to its handler. Unknown types are
// ignored.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) (*Outcome, error) {
	typ := string(event.Type)
	if event.Data == nil || len(event.Data.Raw) == 0 {
		if isHandled(typ) {
			return nil, fmt.Errorf("%w: %s has no data object", ErrInvalidEvent, typ)
		}
		return &Outcome{EventType: typ, Status: OutcomeIgnored, Reason: ReasonUnhandledEventType}, nil
	}

	var (
		out *Outcome
		err error
	)
	switch typ {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", ErrInvalidEvent, err)
		}
		switch typ {
		case EventSubscriptionCreated:
			out, err = s.HandleSubscriptionCreated(ctx, &sub)
		case EventSubscriptionUpdated:
			out, err = s.HandleSubscriptionUpdated(ctx, &sub)
		default:
			out, err = s.HandleSubscriptionDeleted(ctx, &sub)
		}
	case EventInvoicePaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", ErrInvalidEvent, err)
		}
		out, err = s.HandleInvoicePaymentSucceeded(ctx, &inv)
	case EventPaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: decode payment intent: %v", ErrInvalidEvent, err)
		}
		out, err = s.HandlePaymentSucceeded(ctx, &pi)
	default:
		log.Debugf("[Billing] Ignoring unhandled event type %s (%s)", typ, event.ID)
		return &Outcome{EventType: typ, Status: OutcomeIgnored, Reason: ReasonUnhandledEventType}, nil
	}
	if err != nil {
		return nil, err
	}
	out.EventType = typ
	return out, nil
}

func isHandled(typ string) bool {
	switch typ {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventInvoicePaymentSucceeded, EventPaymentIntentSucceeded:
		return true
	}
	return false
}

// HandleSubscriptionCreated stores a new subscription. No credits are issued:
// the first invoice payment does that.
func (s *Service) HandleSubscriptionCreated(ctx context.Context, in *stripe.Subscription) (*Outcome, error) {
	snap := SnapshotFromStripe(in)
	if snap == nil || snap.ID == "" {
		return nil, fmt.Errorf("%w: subscription id missing", ErrInvalidEvent)
	}
	pkg, err := s.packageFromMetadata(snap.Metadata)
	if err != nil {
		return nil, err
	}
	userID, err := s.resolveUser(ctx, snap.CustomerID, snap.Metadata)
	if err != nil {
		return nil, err
	}

	cycle := models.BillingCycleForPeriod(pkg.SubscriptionPeriod)
	sub := &models.UserSubscription{
		UserID:                 userID,
		PackageID:              pkg.ID,
		Platform:               models.PlatformStripe,
		PlatformSubscriptionID: snap.ID,
		Status:                 subscriptionStatus(snap.Status),
		CurrentPeriodStart:     snap.CurrentPeriodStart,
		CurrentPeriodEnd:       snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:      snap.CancelAtPeriodEnd,
		CreditsPerPeriod:       pkg.Credits,
		BillingCycle:           cycle,
		CreditAllocationCycle:  models.AllocationCycleMonthly,
	}
	if cycle == models.BillingCycleYearly && snap.CurrentPeriodStart != nil {
		next := allocation.AddMonthClamped(*snap.CurrentPeriodStart)
		sub.NextCreditAllocationDate = &next
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, fmt.Errorf("store subscription %s: %w", snap.ID, err)
	}

	log.Infof("[Billing] Subscription %s stored for user %d (package %d, %s)", snap.ID, userID, pkg.ID, cycle)
	s.publishSync(ctx, sub, "created")
	return &Outcome{Status: OutcomeProcessed, SubscriptionID: sub.ID}, nil
}

// HandleSubscriptionUpdated syncs status, period and cancellation flags. A
// package_id in metadata that differs from the stored one records a plan change.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, in *stripe.Subscription) (*Outcome, error) {
	snap := SnapshotFromStripe(in)
	if snap == nil || snap.ID == "" {
		return nil, fmt.Errorf("%w: subscription id missing", ErrInvalidEvent)
	}
	sub, err := s.localSubscription(snap.ID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"status":               subscriptionStatus(snap.Status),
		"cancel_at_period_end": snap.CancelAtPeriodEnd,
	}
	if snap.CurrentPeriodStart != nil {
		fields["current_period_start"] = *snap.CurrentPeriodStart
	}
	if snap.CurrentPeriodEnd != nil {
		fields["current_period_end"] = *snap.CurrentPeriodEnd
	}

	if raw := strings.TrimSpace(snap.Metadata["package_id"]); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err == nil && uint(id) != sub.PackageID {
			pkg, err := s.getPackage(uint(id))
			if err != nil {
				return nil, err
			}
			effective := s.Now()
			if snap.CurrentPeriodStart != nil {
				effective = *snap.CurrentPeriodStart
			}
			fields["package_id"] = pkg.ID
			fields["previous_package_id"] = sub.PackageID
			fields["credits_per_period"] = pkg.Credits
			fields["billing_cycle"] = models.BillingCycleForPeriod(pkg.SubscriptionPeriod)
			fields["upgrade_effective_date"] = effective
			log.Infof("[Billing] Subscription %s changed package %d -> %d", snap.ID, sub.PackageID, pkg.ID)
		}
	}

	if err := s.subs.UpdateFields(sub.ID, fields); err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", snap.ID, err)
	}
	s.publishSync(ctx, sub, "updated")
	return &Outcome{Status: OutcomeProcessed, SubscriptionID: sub.ID}, nil
}

// HandleSubscriptionDeleted marks the subscription deleted and writes a
// zero-amount audit entry. Existing credits stay spendable.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, in *stripe.Subscription) (*Outcome, error) {
	snap := SnapshotFromStripe(in)
	if snap == nil || snap.ID == "" {
		return nil, fmt.Errorf("%w: subscription id missing", ErrInvalidEvent)
	}
	sub, err := s.localSubscription(snap.ID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	meta := models.Metadata{
		"subscription_id": snap.ID,
		"deleted_at":      now.Format(time.RFC3339),
	}
	if sub.CurrentPeriodEnd != nil {
		meta["final_period_end"] = sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}

	var (
		audit   *models.CreditTransaction
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := repository.NewSubscriptionRepository(tx).UpdateFields(sub.ID, map[string]interface{}{
			"status": models.SubscriptionDeleted,
		})
		if err != nil {
			return err
		}
		audit, created, err = s.ledger.WithTx(tx).RecordAudit(ctx, ledger.AuditInput{
			UserID:                sub.UserID,
			Source:                models.SourceSubscriptionRenewal,
			Description:           "Subscription deleted",
			SubscriptionID:        &sub.ID,
			PlatformTransactionID: snap.ID + ":deleted",
			Metadata:              meta,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete subscription %s: %w", snap.ID, err)
	}
	if !created {
		return &Outcome{Status: OutcomeSkipped, Reason: ReasonAlreadyProcessed, SubscriptionID: sub.ID, TransactionID: audit.ID}, nil
	}

	log.Infof("[Billing] Subscription %s deleted for user %d", snap.ID, sub.UserID)
	s.publishSync(ctx, sub, "deleted")
	return &Outcome{Status: OutcomeProcessed, SubscriptionID: sub.ID, TransactionID: audit.ID}, nil
}

// HandleInvoicePaymentSucceeded issues the full package credits for a paid
// subscription invoice and rolls unused credits into one lot. The invoice id
// is the idempotency key, so a redelivered invoice changes nothing.
func (s *Service) HandleInvoicePaymentSucceeded(ctx context.Context, inv *stripe.Invoice) (*Outcome, error) {
	if inv == nil || inv.ID == "" {
		return nil, fmt.Errorf("%w: invoice id missing", ErrInvalidEvent)
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return &Outcome{Status: OutcomeIgnored, Reason: ReasonNotSubscriptionInv}, nil
	}
	stripeSubID := inv.Subscription.ID

	if txn, ok, err := s.ledger.FindByPlatformID(ctx, models.SourceSubscriptionRenewal, inv.ID); err != nil {
		return nil, err
	} else if ok {
		return &Outcome{Status: OutcomeSkipped, Reason: ReasonAlreadyProcessed, TransactionID: txn.ID}, nil
	}

	sub, err := s.localSubscription(stripeSubID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.getPackage(sub.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg.Credits <= 0 {
		return nil, fmt.Errorf("package %d grants no credits", pkg.ID)
	}
	snap, err := s.fetcher.FetchSubscription(ctx, stripeSubID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	out := &Outcome{Status: OutcomeProcessed, SubscriptionID: sub.ID, Credits: pkg.Credits}
	expires := pkg.ExpiresAt(now)
	meta := models.Metadata{
		"invoice_id":      inv.ID,
		"subscription_id": stripeSubID,
	}
	if snap.CurrentPeriodStart != nil {
		meta["period_start"] = snap.CurrentPeriodStart.Format(time.RFC3339)
	}
	if snap.CurrentPeriodEnd != nil {
		meta["period_end"] = snap.CurrentPeriodEnd.Format(time.RFC3339)
	}

	errDuplicate := errors.New("invoice already booked")
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subRepo := repository.NewSubscriptionRepository(tx)
		fields := map[string]interface{}{}
		if snap.CurrentPeriodStart != nil {
			fields["current_period_start"] = *snap.CurrentPeriodStart
		}
		if snap.CurrentPeriodEnd != nil {
			fields["current_period_end"] = *snap.CurrentPeriodEnd
		}
		if len(fields) > 0 {
			if err := subRepo.UpdateFields(sub.ID, fields); err != nil {
				return fmt.Errorf("update subscription period: %w", err)
			}
		}

		led := s.ledger.WithTx(tx)
		lots, err := led.RolloverCandidates(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("load rollover candidates: %w", err)
		}
		rollover := 0
		for _, lot := range lots {
			rollover += lot.RemainingAmount
		}

		issueMeta := models.Metadata{"rollover_amount": rollover}
		for k, v := range meta {
			issueMeta[k] = v
		}
		entry, created, err := led.Issue(ctx, ledger.IssueInput{
			UserID:                sub.UserID,
			Amount:                pkg.Credits,
			Source:                models.SourceSubscriptionRenewal,
			Description:           fmt.Sprintf("Subscription renewal: %s", pkg.Name),
			SubscriptionID:        &sub.ID,
			PackageID:             &pkg.ID,
			PlatformTransactionID: inv.ID,
			ExpiresAt:             expires,
			Metadata:              issueMeta,
		})
		if err != nil {
			return err
		}
		if !created {
			out.TransactionID = entry.Transaction.ID
			return errDuplicate
		}
		out.TransactionID = entry.Transaction.ID

		res, err := led.Rollover(ctx, ledger.RolloverInput{
			UserID:                sub.UserID,
			ParentTransactionID:   entry.Transaction.ID,
			Lots:                  lots,
			ExpiresAt:             expires,
			SubscriptionID:        &sub.ID,
			PackageID:             &pkg.ID,
			PlatformTransactionID: inv.ID + ":rollover",
			Metadata:              meta,
		})
		if err != nil {
			return fmt.Errorf("rollover: %w", err)
		}
		out.RolloverAmount = res.Amount
		if res.Entry != nil {
			out.RolloverTransactionID = res.Entry.Transaction.ID
		}

		// The renewal counts as this month's allocation for yearly plans.
		if sub.AllocatesMonthly() {
			if err := subRepo.UpdateFields(sub.ID, map[string]interface{}{
				"last_credit_allocation_date": now,
			}); err != nil {
				return fmt.Errorf("set last allocation date: %w", err)
			}
			_, err := allocation.NewRepository(tx).CreateHistoryIfNotExists(&models.CreditAllocationHistory{
				UserID:           sub.UserID,
				SubscriptionID:   sub.ID,
				TransactionID:    entry.Transaction.ID,
				BalanceID:        entry.Balance.ID,
				AllocationID:     uuid.NewString(),
				CreditsAllocated: pkg.Credits,
				AllocationPeriod: allocation.PeriodKey(now),
				AllocationType:   models.AllocationTypeMonthly,
				Status:           models.AllocationSuccess,
			})
			if err != nil {
				return fmt.Errorf("record allocation history: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errDuplicate) {
		return &Outcome{Status: OutcomeSkipped, Reason: ReasonAlreadyProcessed, TransactionID: out.TransactionID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("renew subscription %s: %w", stripeSubID, err)
	}

	log.Infof("[Billing] Invoice %s: issued %d credits to user %d (rollover %d)",
		inv.ID, out.Credits, sub.UserID, out.RolloverAmount)
	evs := []events.Event{{
		Type:           events.TypeCreditsIssued,
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		TransactionID:  out.TransactionID,
		Amount:         out.Credits,
		Data:           map[string]any{"invoice_id": inv.ID},
		OccurredAt:     now,
	}}
	if out.RolloverAmount > 0 {
		evs = append(evs, events.Event{
			Type:           events.TypeCreditsRolledOver,
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			TransactionID:  out.RolloverTransactionID,
			Amount:         out.RolloverAmount,
			OccurredAt:     now,
		})
	}
	events.PublishBestEffort(ctx, s.publisher, evs...)
	return out, nil
}

// HandlePaymentSucceeded books a one-time package purchase. Payment intents
// that belong to an invoice are left to the invoice handler.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) (*Outcome, error) {
	if pi == nil || pi.ID == "" {
		return nil, fmt.Errorf("%w: payment intent id missing", ErrInvalidEvent)
	}
	if pi.Invoice != nil && pi.Invoice.ID != "" {
		return &Outcome{Status: OutcomeIgnored, Reason: ReasonInvoicePaymentIntent}, nil
	}
	customerID := ""
	if pi.Customer != nil {
		customerID = pi.Customer.ID
	}
	pkg, err := s.packageFromMetadata(pi.Metadata)
	if err != nil {
		return nil, err
	}
	if pkg.Credits <= 0 {
		return nil, fmt.Errorf("package %d grants no credits", pkg.ID)
	}
	userID, err := s.resolveUser(ctx, customerID, pi.Metadata)
	if err != nil {
		return nil, err
	}

	entry, created, err := s.ledger.Issue(ctx, ledger.IssueInput{
		UserID:                userID,
		Amount:                pkg.Credits,
		Source:                models.SourceStripe,
		Description:           fmt.Sprintf("Credit purchase: %s", pkg.Name),
		PackageID:             &pkg.ID,
		PlatformTransactionID: pi.ID,
		ExpiresAt:             pkg.ExpiresAt(s.Now()),
		Metadata: models.Metadata{
			"payment_intent_id": pi.ID,
			"customer_id":       customerID,
			"amount":            pi.Amount,
			"currency":          string(pi.Currency),
		},
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return &Outcome{Status: OutcomeSkipped, Reason: ReasonAlreadyProcessed, TransactionID: entry.Transaction.ID}, nil
	}

	log.Infof("[Billing] Payment %s: issued %d credits to user %d", pi.ID, pkg.Credits, userID)
	events.PublishBestEffort(ctx, s.publisher, events.Event{
		Type:          events.TypeCreditsIssued,
		UserID:        userID,
		TransactionID: entry.Transaction.ID,
		Amount:        pkg.Credits,
		Data:          map[string]any{"payment_intent_id": pi.ID},
		OccurredAt:    s.Now(),
	})
	return &Outcome{Status: OutcomeProcessed, TransactionID: entry.Transaction.ID, Credits: pkg.Credits}, nil
}

func (s *Service) publishSync(ctx context.Context, sub *models.UserSubscription, action string) {
	events.PublishBestEffort(ctx, s.publisher, events.Event{
		Type:           events.TypeSubscriptionSync,
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Data:           map[string]any{"action": action, "platform_subscription_id": sub.PlatformSubscriptionID},
		OccurredAt:     s.Now(),
	})
}

// RecordWebhookEvent persists webhook payloads idempotently. Deliveries without
// a trustworthy event id are keyed by a hash of the payload.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" || !in.SignatureValid {
		eventID = PayloadHashID(in.PayloadJSON)
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// PayloadHashID is the event id used for unverified deliveries.
func PayloadHashID(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return "hash:" + hex.EncodeToString(sum[:])
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg, s.Now())
}
