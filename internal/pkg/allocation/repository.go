package allocation

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CreditLedger/app/models"
)

// Repository provides the allocation engine's DB operations.
type Repository interface {
	CreateHistoryIfNotExists(h *models.CreditAllocationHistory) (bool, error)
	SumAllocatedByPeriod(subscriptionID uint, fromPeriod string) (map[string]int, error)

	CreateFailed(f *models.FailedAllocation) error
	GetFailed(id uint) (*models.FailedAllocation, error)
	FindOpenFailed(subscriptionID uint, period string) (*models.FailedAllocation, error)
	ListDueFailed(now time.Time, maxRetries int) ([]models.FailedAllocation, error)
	ListFailed(status models.FailedAllocationStatus, page, pageSize int) ([]models.FailedAllocation, int64, error)
	UpdateFailed(id uint, fields map[string]interface{}) error

	CreateDiscrepancyIfNotExists(d *models.AllocationDiscrepancy) (bool, error)
	FindDiscrepancy(subscriptionID uint, period string, typ models.DiscrepancyType) (*models.AllocationDiscrepancy, error)
	GetDiscrepancy(id uint) (*models.AllocationDiscrepancy, error)
	ListDiscrepancies(status models.DiscrepancyStatus, page, pageSize int) ([]models.AllocationDiscrepancy, int64, error)
	UpdateDiscrepancy(id uint, fields map[string]interface{}) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an allocation repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateHistoryIfNotExists(h *models.CreditAllocationHistory) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "allocation_period"}},
		DoNothing: true,
	}).Create(h)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SumAllocatedByPeriod sums successful allocations per "YYYY-MM" period from
// fromPeriod on.
func (r *gormRepository) SumAllocatedByPeriod(subscriptionID uint, fromPeriod string) (map[string]int, error) {
	var rows []struct {
		AllocationPeriod string
		Total            int
	}
	err := r.db.Model(&models.CreditAllocationHistory{}).
		Select("allocation_period, SUM(credits_allocated) AS total").
		Where("subscription_id = ? AND status = ? AND allocation_period >= ?",
			subscriptionID, models.AllocationSuccess, fromPeriod).
		Group("allocation_period").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.AllocationPeriod] = row.Total
	}
	return out, nil
}

func (r *gormRepository) CreateFailed(f *models.FailedAllocation) error {
	return r.db.Create(f).Error
}

func (r *gormRepository) GetFailed(id uint) (*models.FailedAllocation, error) {
	var f models.FailedAllocation
	if err := r.db.First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *gormRepository) FindOpenFailed(subscriptionID uint, period string) (*models.FailedAllocation, error) {
	var f models.FailedAllocation
	err := r.db.
		Where("subscription_id = ? AND allocation_period = ? AND status = ?",
			subscriptionID, period, models.FailedAllocationPendingRetry).
		Order("id ASC").
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListDueFailed returns pending rows whose next attempt is due.
func (r *gormRepository) ListDueFailed(now time.Time, maxRetries int) ([]models.FailedAllocation, error) {
	var rows []models.FailedAllocation
	err := r.db.
		Where("status = ? AND next_retry_at <= ? AND retry_count < ?",
			models.FailedAllocationPendingRetry, now, maxRetries).
		Order("next_retry_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *gormRepository) ListFailed(status models.FailedAllocationStatus, page, pageSize int) ([]models.FailedAllocation, int64, error) {
	q := r.db.Model(&models.FailedAllocation{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.FailedAllocation
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	return rows, total, err
}

func (r *gormRepository) UpdateFailed(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.FailedAllocation{}).Where("id = ?", id).Updates(fields).Error
}

func (r *gormRepository) CreateDiscrepancyIfNotExists(d *models.AllocationDiscrepancy) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subscription_id"},
			{Name: "allocation_period"},
			{Name: "discrepancy_type"},
		},
		DoNothing: true,
	}).Create(d)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) FindDiscrepancy(subscriptionID uint, period string, typ models.DiscrepancyType) (*models.AllocationDiscrepancy, error) {
	var d models.AllocationDiscrepancy
	err := r.db.
		Where("subscription_id = ? AND allocation_period = ? AND discrepancy_type = ?", subscriptionID, period, typ).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormRepository) GetDiscrepancy(id uint) (*models.AllocationDiscrepancy, error) {
	var d models.AllocationDiscrepancy
	if err := r.db.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormRepository) ListDiscrepancies(status models.DiscrepancyStatus, page, pageSize int) ([]models.AllocationDiscrepancy, int64, error) {
	q := r.db.Model(&models.AllocationDiscrepancy{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.AllocationDiscrepancy
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	return rows, total, err
}

func (r *gormRepository) UpdateDiscrepancy(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.AllocationDiscrepancy{}).Where("id = ?", id).Updates(fields).Error
}
