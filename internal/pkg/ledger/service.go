package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/events"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service appends to the credit journal and maintains spendable lots.
//
// Every method runs in its own DB transaction. A Service obtained through
// WithTx joins the caller's transaction instead (GORM nests it as a savepoint),
// which is how renewals and allocations book credits together with their own
// rows in one unit of work.
type Service struct {
	db        *gorm.DB
	now       func() time.Time
	publisher events.Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now. Times are normalised to UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the publisher used by top-level user operations.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a ledger service from a GORM DB handle.
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, now: time.Now, publisher: events.Nop{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a copy of the service bound to tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	c := *s
	c.db = tx
	return &c
}

// Now is the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

func (s *Service) transaction(ctx context.Context, fn func(r Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// Issue appends a credit transaction and its lot atomically. When the input
// carries a platform transaction id that was already booked for the same
// source, nothing is written and the existing entry is returned with
// created=false.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*Entry, bool, error) {
	if in.Amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	if !in.Source.IsValid() {
		return nil, false, ErrInvalidSource
	}

	var (
		entry   *Entry
		created bool
	)
	err := s.transaction(ctx, func(r Repository) error {
		var err error
		entry, created, err = s.issue(r, in)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		metrics.CreditsIssued.WithLabelValues(string(in.Source)).Add(float64(in.Amount))
	}
	return entry, created, nil
}

func (s *Service) issue(r Repository, in IssueInput) (*Entry, bool, error) {
	now := s.Now()
	current, err := r.SumSpendable(in.UserID, now)
	if err != nil {
		return nil, false, err
	}

	meta := in.Metadata
	if meta == nil {
		meta = models.Metadata{}
	}
	txn := models.CreditTransaction{
		UserID:               in.UserID,
		TransactionType:      models.TransactionTypeCredit,
		TransactionSource:    in.Source,
		Amount:               in.Amount,
		BalanceAfter:         current + in.Amount,
		Description:          in.Description,
		SubscriptionID:       in.SubscriptionID,
		PackageID:            in.PackageID,
		RelatedTransactionID: in.RelatedTransactionID,
		CreditMetadata:       meta,
	}
	if key := strings.TrimSpace(in.PlatformTransactionID); key != "" {
		txn.PlatformTransactionID = &key
	}

	created, err := r.CreateTransactionIfNotExists(&txn)
	if err != nil {
		return nil, false, fmt.Errorf("create credit transaction: %w", err)
	}
	if !created {
		existing, err := r.FindTransactionByPlatformID(in.Source, *txn.PlatformTransactionID)
		if err != nil {
			return nil, false, fmt.Errorf("load existing transaction: %w", err)
		}
		lot, err := r.GetBalanceByTransactionID(existing.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
		entry := &Entry{Transaction: *existing}
		if lot != nil {
			entry.Balance = *lot
		}
		return entry, false, nil
	}

	lot := models.UserCreditBalance{
		UserID:          in.UserID,
		PackageID:       in.PackageID,
		TransactionID:   txn.ID,
		InitialAmount:   in.Amount,
		RemainingAmount: in.Amount,
		ExpiresAt:       utcPtr(in.ExpiresAt),
		IsActive:        true,
	}
	if err := r.CreateBalance(&lot); err != nil {
		return nil, false, fmt.Errorf("create credit balance: %w", err)
	}
	return &Entry{Transaction: txn, Balance: lot}, true, nil
}

// FindByPlatformID returns the transaction booked for source under the given
// platform id. ok is false when there is none.
func (s *Service) FindByPlatformID(ctx context.Context, source models.TransactionSource, platformID string) (*models.CreditTransaction, bool, error) {
	txn, err := NewRepository(s.db.WithContext(ctx)).FindTransactionByPlatformID(source, platformID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return txn, true, nil
}

// RecordAudit appends a zero-amount debit that moves no credits, e.g. a
// subscription deletion. With a platform id the record is written once.
func (s *Service) RecordAudit(ctx context.Context, in AuditInput) (*models.CreditTransaction, bool, error) {
	if !in.Source.IsValid() {
		return nil, false, ErrInvalidSource
	}
	var (
		txn     models.CreditTransaction
		created bool
	)
	err := s.transaction(ctx, func(r Repository) error {
		balance, err := r.SumSpendable(in.UserID, s.Now())
		if err != nil {
			return err
		}
		meta := in.Metadata
		if meta == nil {
			meta = models.Metadata{}
		}
		txn = models.CreditTransaction{
			UserID:            in.UserID,
			TransactionType:   models.TransactionTypeDebit,
			TransactionSource: in.Source,
			Amount:            0,
			BalanceAfter:      balance,
			Description:       in.Description,
			SubscriptionID:    in.SubscriptionID,
			CreditMetadata:    meta,
		}
		if key := strings.TrimSpace(in.PlatformTransactionID); key != "" {
			txn.PlatformTransactionID = &key
		}
		created, err = r.CreateTransactionIfNotExists(&txn)
		if err != nil {
			return fmt.Errorf("create audit transaction: %w", err)
		}
		if !created {
			existing, err := r.FindTransactionByPlatformID(in.Source, *txn.PlatformTransactionID)
			if err != nil {
				return err
			}
			txn = *existing
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &txn, created, nil
}

// RolloverCandidates returns the lots a rollover would supersede right now:
// active, unexpired and with a positive remainder. Rows are locked when the
// store supports it.
func (s *Service) RolloverCandidates(ctx context.Context, userID uint) ([]models.UserCreditBalance, error) {
	return NewRepository(s.db.WithContext(ctx)).ListSpendableLots(userID, s.Now(), true)
}

// Rollover merges the given lots into one new lot. The new transaction is
// tagged is_rollover and points at the renewal through parent_transaction_id;
// the new lot gets the renewal's expiry. Old lots are deactivated with
// consumed_at stamped and their amounts left untouched.
func (s *Service) Rollover(ctx context.Context, in RolloverInput) (*RolloverResult, error) {
	res := &RolloverResult{}
	var ids []uint
	for _, lot := range in.Lots {
		if !lot.IsActive || lot.RemainingAmount <= 0 {
			continue
		}
		res.Amount += lot.RemainingAmount
		ids = append(ids, lot.ID)
	}
	if res.Amount == 0 {
		return res, nil
	}

	err := s.transaction(ctx, func(r Repository) error {
		meta := models.Metadata{}
		for k, v := range in.Metadata {
			meta[k] = v
		}
		meta["is_rollover"] = true
		meta["parent_transaction_id"] = in.ParentTransactionID
		meta["rolled_balance_ids"] = ids
		entry, created, err := s.issue(r, IssueInput{
			UserID:                in.UserID,
			Amount:                res.Amount,
			Source:                models.SourceSubscriptionRenewal,
			Description:           fmt.Sprintf("Rollover of %d unused credits", res.Amount),
			SubscriptionID:        in.SubscriptionID,
			PackageID:             in.PackageID,
			PlatformTransactionID: in.PlatformTransactionID,
			ExpiresAt:             in.ExpiresAt,
			Metadata:              meta,
		})
		if err != nil {
			return err
		}
		if !created {
			// Already rolled by an earlier delivery; the lots were superseded then.
			res.Entry = entry
			return nil
		}
		if err := r.SupersedeLots(ids, s.Now()); err != nil {
			return fmt.Errorf("supersede lots: %w", err)
		}
		res.Entry = entry
		res.Superseded = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AvailableBalance is the sum of remaining credits over active, unexpired lots.
func (s *Service) AvailableBalance(ctx context.Context, userID uint) (int, error) {
	total, err := NewRepository(s.db.WithContext(ctx)).SumSpendable(userID, s.Now())
	if err != nil {
		return 0, err
	}
	if total < 0 {
		return 0, nil
	}
	return total, nil
}

// BalanceDetails returns the balance together with lifetime totals and active lots.
func (s *Service) BalanceDetails(ctx context.Context, userID uint) (*BalanceDetails, error) {
	r := NewRepository(s.db.WithContext(ctx))
	now := s.Now()

	lots, err := r.ListSpendableLots(userID, now, false)
	if err != nil {
		return nil, err
	}
	earned, err := r.SumTransactions(userID, models.TransactionTypeCredit)
	if err != nil {
		return nil, err
	}
	used, err := r.SumTransactions(userID, models.TransactionTypeDebit)
	if err != nil {
		return nil, err
	}

	d := &BalanceDetails{
		UserID:             userID,
		TotalCreditsEarned: earned,
		TotalCreditsUsed:   used,
		ActiveLots:         lots,
	}
	for _, lot := range lots {
		d.CurrentBalance += lot.RemainingAmount
	}
	return d, nil
}

// Deduct consumes credits FIFO by earliest expiry and records one debit
// transaction plus a consumption log per touched lot.
func (s *Service) Deduct(ctx context.Context, in DeductInput) (*DeductResult, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var res *DeductResult
	err := s.transaction(ctx, func(r Repository) error {
		desc := in.Description
		if desc == "" {
			desc = fmt.Sprintf("API usage: %s", in.APIEndpoint)
		}
		debit, logs, remaining, err := s.debit(r, in.UserID, in.Amount, models.SourceAPIUsage, desc, "", in.APIEndpoint, in.Metadata)
		if err != nil {
			return err
		}
		res = &DeductResult{Transaction: *debit, Consumed: logs, Remaining: remaining}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditsDebited.WithLabelValues(string(models.SourceAPIUsage)).Add(float64(in.Amount))
	events.PublishBestEffort(ctx, s.publisher, events.Event{
		Type:          events.TypeCreditsDeducted,
		UserID:        in.UserID,
		TransactionID: res.Transaction.ID,
		Amount:        in.Amount,
		Data:          map[string]any{"api_endpoint": in.APIEndpoint},
		OccurredAt:    s.Now(),
	})
	return res, nil
}

// debit draws amount from the user's lots in FIFO order and writes the debit row.
func (s *Service) debit(
	r Repository,
	userID uint,
	amount int,
	source models.TransactionSource,
	description,
	relatedID,
	apiEndpoint string,
	meta models.Metadata,
) (*models.CreditTransaction, []models.CreditConsumptionLog, int, error) {
	now := s.Now()
	lots, err := r.ListSpendableLots(userID, now, true)
	if err != nil {
		return nil, nil, 0, err
	}
	available := 0
	for _, lot := range lots {
		available += lot.RemainingAmount
	}
	if available < amount {
		return nil, nil, available, ErrInsufficientCredits
	}

	if meta == nil {
		meta = models.Metadata{}
	}
	txn := models.CreditTransaction{
		UserID:               userID,
		TransactionType:      models.TransactionTypeDebit,
		TransactionSource:    source,
		Amount:               amount,
		BalanceAfter:         available - amount,
		Description:          description,
		RelatedTransactionID: relatedID,
		APIEndpoint:          apiEndpoint,
		CreditMetadata:       meta,
	}
	if _, err := r.CreateTransactionIfNotExists(&txn); err != nil {
		return nil, nil, 0, fmt.Errorf("create debit transaction: %w", err)
	}

	var logs []models.CreditConsumptionLog
	left := amount
	for _, lot := range lots {
		if left == 0 {
			break
		}
		take := min(lot.RemainingAmount, left)
		remaining := lot.RemainingAmount - take
		var consumedAt *time.Time
		if remaining == 0 {
			consumedAt = &now
		}
		if err := r.UpdateLotRemaining(lot.ID, remaining, consumedAt); err != nil {
			return nil, nil, 0, fmt.Errorf("update lot %d: %w", lot.ID, err)
		}
		logs = append(logs, models.CreditConsumptionLog{
			UserID:        userID,
			BalanceID:     lot.ID,
			TransactionID: txn.ID,
			Amount:        take,
			APIEndpoint:   apiEndpoint,
			Metadata:      models.Metadata{"remaining_after": remaining},
		})
		left -= take
	}
	if err := r.CreateConsumptionLogs(logs); err != nil {
		return nil, nil, 0, fmt.Errorf("create consumption logs: %w", err)
	}
	return &txn, logs, available - amount, nil
}

// Transfer moves credits from one user to another. The sender is debited
// FIFO; the recipient receives a non-expiring lot. Both rows share the
// transfer id in related_transaction_id.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if in.FromUserID == in.ToUserID {
		return nil, ErrSelfTransfer
	}

	res := &TransferResult{TransferID: uuid.NewString()}
	err := s.transaction(ctx, func(r Repository) error {
		ok, err := r.UserExists(in.ToUserID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUserNotFound
		}

		debit, _, _, err := s.debit(r, in.FromUserID, in.Amount, models.SourceP2PTransfer,
			fmt.Sprintf("Transfer to user %d", in.ToUserID), res.TransferID, "",
			models.Metadata{"transfer_id": res.TransferID, "recipient_id": in.ToUserID, "note": in.Note})
		if err != nil {
			return err
		}
		res.Debit = *debit

		entry, _, err := s.issue(r, IssueInput{
			UserID:               in.ToUserID,
			Amount:               in.Amount,
			Source:               models.SourceP2PTransfer,
			Description:          fmt.Sprintf("Transfer from user %d", in.FromUserID),
			RelatedTransactionID: res.TransferID,
			Metadata:             models.Metadata{"transfer_id": res.TransferID, "sender_id": in.FromUserID, "note": in.Note},
		})
		if err != nil {
			return err
		}
		res.Credit = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Ledger] Transferred %d credits from user %d to user %d (%s)", in.Amount, in.FromUserID, in.ToUserID, res.TransferID)
	metrics.CreditsDebited.WithLabelValues(string(models.SourceP2PTransfer)).Add(float64(in.Amount))
	events.PublishBestEffort(ctx, s.publisher, events.Event{
		Type:          events.TypeCreditsTransferred,
		UserID:        in.FromUserID,
		TransactionID: res.Debit.ID,
		Amount:        in.Amount,
		Data:          map[string]any{"transfer_id": res.TransferID, "recipient_id": in.ToUserID},
		OccurredAt:    s.Now(),
	})
	return res, nil
}

// Grant issues system credits, from a package when PackageID is set or an
// explicit amount otherwise.
func (s *Service) Grant(ctx context.Context, in GrantInput) (*Entry, error) {
	var entry *Entry
	err := s.transaction(ctx, func(r Repository) error {
		ok, err := r.UserExists(in.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUserNotFound
		}

		issue := IssueInput{
			UserID:      in.UserID,
			Amount:      in.Amount,
			Source:      models.SourceSystem,
			Description: "Admin credit grant",
			Metadata:    models.Metadata{"reason": in.Reason},
		}
		if in.PackageID != nil {
			pkg, err := r.GetPackage(*in.PackageID)
			if err != nil {
				return err
			}
			issue.Amount = pkg.Credits
			issue.PackageID = &pkg.ID
			issue.ExpiresAt = pkg.ExpiresAt(s.Now())
			issue.Description = fmt.Sprintf("Admin grant of package %s", pkg.Name)
		}
		if issue.Amount <= 0 {
			return ErrInvalidAmount
		}
		entry, _, err = s.issue(r, issue)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.CreditsIssued.WithLabelValues(string(models.SourceSystem)).Add(float64(entry.Transaction.Amount))
	events.PublishBestEffort(ctx, s.publisher, events.Event{
		Type:          events.TypeCreditsIssued,
		UserID:        in.UserID,
		TransactionID: entry.Transaction.ID,
		Amount:        entry.Transaction.Amount,
		OccurredAt:    s.Now(),
	})
	return entry, nil
}

// History returns one page of the user's journal, newest first.
func (s *Service) History(ctx context.Context, f HistoryFilter) ([]models.CreditTransaction, int64, error) {
	f.Page, f.PageSize = NormalizePage(f.Page, f.PageSize)
	return NewRepository(s.db.WithContext(ctx)).ListTransactions(f)
}

// NormalizePage clamps pagination input to page >= 1 and 1..100 items.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
