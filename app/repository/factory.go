package repository

import (
	"sync"

	"gorm.io/gorm"
)

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

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetPurchaseRepository returns the purchase repository instance
func (f *Factory) GetPurchaseRepository() PurchaseRepository {
	return f.GetRepositories().Purchase
}

// GetIncentiveRepository returns the incentive repository instance
func (f *Factory) GetIncentiveRepository() IncentiveRepository {
	return f.GetRepositories().Incentive
}

// GetReferralClaimRepository returns the referral claim repository instance
func (f *Factory) GetReferralClaimRepository() ReferralClaimRepository {
	return f.GetRepositories().ReferralClaim
}

// GetCheckInCodeRepository returns the check-in code repository instance
func (f *Factory) GetCheckInCodeRepository() CheckInCodeRepository {
	return f.GetRepositories().CheckInCode
}

// GetApiClientRepository returns the API client repository instance
func (f *Factory) GetApiClientRepository() ApiClientRepository {
	return f.GetRepositories().ApiClient
}

// GetWebhookEventRepository returns the webhook event repository instance
func (f *Factory) GetWebhookEventRepository() WebhookEventRepository {
	return f.GetRepositories().WebhookEvent
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
