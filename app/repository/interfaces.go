package repository

import (
	"time"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"gorm.io/gorm"
)

// UserRepository looks up users owned by the account service.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
}

// PackageRepository reads the credit package catalog.
type PackageRepository interface {
	GetByID(id uint) (*models.CreditPackage, error)
	GetByStripePriceID(priceID string) (*models.CreditPackage, error)
	List(activeOnly bool) ([]models.CreditPackage, error)
}

// SubscriptionRepository reads and updates user subscriptions.
type SubscriptionRepository interface {
	GetByID(id uint) (*models.UserSubscription, error)
	GetByPlatformID(platform models.SubscriptionPlatform, platformSubscriptionID string) (*models.UserSubscription, error)
	ListEligibleForAllocation(monthStart time.Time) ([]models.UserSubscription, error)
	ListActiveMonthlyAllocating() ([]models.UserSubscription, error)
	UpdateFields(id uint, fields map[string]interface{}) error
}

// APIClientRepository resolves machine credentials.
type APIClientRepository interface {
	GetByKeyHash(hash string) (*models.APIClient, error)
	TouchLastUsed(id uint, at time.Time) error
}

// Repositories bundles all repositories bound to one DB handle.
type Repositories struct {
	User         UserRepository
	Package      PackageRepository
	Subscription SubscriptionRepository
	APIClient    APIClientRepository
}

// NewRepositories creates uncached repositories bound to db. Use it inside a
// transaction; long-lived callers should go through a Factory.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Package:      NewPackageRepository(db),
		Subscription: NewSubscriptionRepository(db),
		APIClient:    NewAPIClientRepository(db),
	}
}
