package ledger

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CreditLedger/app/models"
)

// Repository provides DB operations used by the ledger service.
type Repository interface {
	CreateTransactionIfNotExists(tx *models.CreditTransaction) (bool, error)
	FindTransactionByPlatformID(source models.TransactionSource, platformID string) (*models.CreditTransaction, error)
	CreateBalance(b *models.UserCreditBalance) error
	GetBalanceByTransactionID(transactionID uint) (*models.UserCreditBalance, error)
	ListSpendableLots(userID uint, now time.Time, forUpdate bool) ([]models.UserCreditBalance, error)
	SumSpendable(userID uint, now time.Time) (int, error)
	SupersedeLots(ids []uint, at time.Time) error
	UpdateLotRemaining(id uint, remaining int, consumedAt *time.Time) error
	CreateConsumptionLogs(logs []models.CreditConsumptionLog) error
	SumTransactions(userID uint, typ models.TransactionType) (int, error)
	ListTransactions(f HistoryFilter) ([]models.CreditTransaction, int64, error)
	UserExists(userID uint) (bool, error)
	GetPackage(id uint) (*models.CreditPackage, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateTransactionIfNotExists(tx *models.CreditTransaction) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "transaction_source"},
			{Name: "platform_transaction_id"},
		},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) FindTransactionByPlatformID(source models.TransactionSource, platformID string) (*models.CreditTransaction, error) {
	var t models.CreditTransaction
	err := r.db.Where("transaction_source = ? AND platform_transaction_id = ?", source, platformID).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) CreateBalance(b *models.UserCreditBalance) error {
	return r.db.Create(b).Error
}

func (r *gormRepository) GetBalanceByTransactionID(transactionID uint) (*models.UserCreditBalance, error) {
	var b models.UserCreditBalance
	if err := r.db.Where("transaction_id = ?", transactionID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// spendable restricts a query to active, unexpired lots with a positive remainder.
func spendable(db *gorm.DB, userID uint, now time.Time) *gorm.DB {
	return db.Where("user_id = ? AND is_active = ? AND remaining_amount > 0 AND (expires_at IS NULL OR expires_at > ?)",
		userID, true, now)
}

// ListSpendableLots orders by earliest expiry first, non-expiring lots last.
func (r *gormRepository) ListSpendableLots(userID uint, now time.Time, forUpdate bool) ([]models.UserCreditBalance, error) {
	q := spendable(r.db.Model(&models.UserCreditBalance{}), userID, now).
		Order("CASE WHEN expires_at IS NULL THEN 1 ELSE 0 END").
		Order("expires_at ASC").
		Order("id ASC")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var lots []models.UserCreditBalance
	err := q.Find(&lots).Error
	return lots, err
}

func (r *gormRepository) SumSpendable(userID uint, now time.Time) (int, error) {
	var total int64
	err := spendable(r.db.Model(&models.UserCreditBalance{}), userID, now).
		Select("COALESCE(SUM(remaining_amount), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *gormRepository) SupersedeLots(ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.UserCreditBalance{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"is_active":   false,
			"consumed_at": at,
		}).Error
}

func (r *gormRepository) UpdateLotRemaining(id uint, remaining int, consumedAt *time.Time) error {
	updates := map[string]interface{}{
		"remaining_amount": remaining,
	}
	if consumedAt != nil {
		updates["is_active"] = false
		updates["consumed_at"] = *consumedAt
	}
	return r.db.Model(&models.UserCreditBalance{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) CreateConsumptionLogs(logs []models.CreditConsumptionLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.Create(&logs).Error
}

func (r *gormRepository) SumTransactions(userID uint, typ models.TransactionType) (int, error) {
	var total int64
	err := r.db.Model(&models.CreditTransaction{}).
		Where("user_id = ? AND transaction_type = ?", userID, typ).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *gormRepository) ListTransactions(f HistoryFilter) ([]models.CreditTransaction, int64, error) {
	q := r.db.Model(&models.CreditTransaction{}).Where("user_id = ?", f.UserID)
	if f.Type != "" {
		q = q.Where("transaction_type = ?", f.Type)
	}
	if f.Source != "" {
		q = q.Where("transaction_source = ?", f.Source)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.CreditTransaction
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&items).Error
	return items, total, err
}

func (r *gormRepository) UserExists(userID uint) (bool, error) {
	var n int64
	if err := r.db.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *gormRepository) GetPackage(id uint) (*models.CreditPackage, error) {
	var p models.CreditPackage
	if err := r.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &p, nil
}
