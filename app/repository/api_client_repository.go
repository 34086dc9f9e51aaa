package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
)

type apiClientRepository struct {
	db *gorm.DB
}

// NewAPIClientRepository creates an API client repository backed by GORM.
func NewAPIClientRepository(db *gorm.DB) APIClientRepository {
	return &apiClientRepository{db: db}
}

// GetByKeyHash resolves a key hash to its client. Revoked keys are returned
// too; callers check IsActive.
func (r *apiClientRepository) GetByKeyHash(hash string) (*models.APIClient, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var c models.APIClient
	if err := r.db.Where("key_hash = ?", trimmed).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *apiClientRepository) TouchLastUsed(id uint, at time.Time) error {
	return r.db.Model(&models.APIClient{}).Where("id = ?", id).Update("last_used_at", at).Error
}
