package repository

import (
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const packageCacheSize = 256

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories. The
// package repository is wrapped in a read-through LRU cache.
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		repos := NewRepositories(f.db)
		cached, err := NewCachedPackageRepository(repos.Package, packageCacheSize)
		if err != nil {
			log.Warnf("[Repository] Package cache disabled: %v", err)
		} else {
			repos.Package = cached
		}
		f.repos = repos
	})
	return f.repos
}

// DB returns the handle the factory was created with.
func (f *Factory) DB() *gorm.DB {
	return f.db
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetPackageRepository returns the package repository instance
func (f *Factory) GetPackageRepository() PackageRepository {
	return f.GetRepositories().Package
}

// GetSubscriptionRepository returns the subscription repository instance
func (f *Factory) GetSubscriptionRepository() SubscriptionRepository {
	return f.GetRepositories().Subscription
}

// GetAPIClientRepository returns the API client repository instance
func (f *Factory) GetAPIClientRepository() APIClientRepository {
	return f.GetRepositories().APIClient
}
