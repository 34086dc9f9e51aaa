package repository

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
)

type packageRepository struct {
	db *gorm.DB
}

// NewPackageRepository creates a package repository backed by GORM.
func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &packageRepository{db: db}
}

func (r *packageRepository) GetByID(id uint) (*models.CreditPackage, error) {
	var p models.CreditPackage
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *packageRepository) GetByStripePriceID(priceID string) (*models.CreditPackage, error) {
	var p models.CreditPackage
	if err := r.db.Where("stripe_price_id = ?", strings.TrimSpace(priceID)).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *packageRepository) List(activeOnly bool) ([]models.CreditPackage, error) {
	q := r.db.Order("id ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.CreditPackage
	err := q.Find(&out).Error
	return out, err
}

// cachedPackageRepository serves GetByID from an LRU. Packages are immutable
// for ledger purposes, so entries never need invalidation.
type cachedPackageRepository struct {
	PackageRepository
	byID *lru.Cache[uint, models.CreditPackage]
}

// NewCachedPackageRepository wraps next with an LRU of the given size.
func NewCachedPackageRepository(next PackageRepository, size int) (PackageRepository, error) {
	cache, err := lru.New[uint, models.CreditPackage](size)
	if err != nil {
		return nil, err
	}
	return &cachedPackageRepository{PackageRepository: next, byID: cache}, nil
}

func (r *cachedPackageRepository) GetByID(id uint) (*models.CreditPackage, error) {
	if p, ok := r.byID.Get(id); ok {
		return &p, nil
	}
	p, err := r.PackageRepository.GetByID(id)
	if err != nil {
		return nil, err
	}
	r.byID.Add(id, *p)
	return p, nil
}
