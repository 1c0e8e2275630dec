package repository

import (
	"time"

	"github.com/QuestPassApp/QuestPass/app/models"
	"gorm.io/gorm"
)

// PurchaseRepository defines the interface for purchase-related database operations
type PurchaseRepository interface {
	Create(purchase *models.Purchase) error
	GetByID(id uint) (*models.Purchase, error)
	GetByUUID(purchaseUUID string) (*models.Purchase, error)
	GetByUUIDWithResults(purchaseUUID string) (*models.Purchase, error)
	Exists(purchaseUUID string) (bool, error)
	Update(purchase *models.Purchase) error
	List(offset, limit int) ([]models.Purchase, error)
	Count() (int64, error)
	CountByEvent(eventID string) (int64, error)
	// TransitionStatus performs a guarded status change. The update only
	// applies while the purchase is still in the expected source status,
	// so concurrent transitions cannot overwrite each other. Returns
	// whether the transition was applied.
	TransitionStatus(purchaseUUID, from, to string, extra map[string]interface{}) (bool, error)
}

// IncentiveRepository defines the interface for incentive definitions and
// per-purchase verification results
type IncentiveRepository interface {
	CreateDefinition(def *models.IncentiveDefinition) error
	UpsertDefinition(def *models.IncentiveDefinition) error
	GetDefinitionByID(id uint) (*models.IncentiveDefinition, error)
	GetDefinitionByUUID(definitionUUID string) (*models.IncentiveDefinition, error)
	GetDefinitionsByEvent(eventID string) ([]models.IncentiveDefinition, error)
	GetActiveDefinitionsByEvent(eventID string) ([]models.IncentiveDefinition, error)
	DeactivateDefinition(definitionUUID string) error
	CountDefinitions() (int64, error)

	// GetOrCreateResult returns the unique result slot for the given
	// purchase/definition pair, creating it on first use. Returns whether
	// the slot was newly created.
	GetOrCreateResult(purchaseID, definitionID uint) (*models.IncentiveResult, bool, error)
	GetResult(purchaseID, definitionID uint) (*models.IncentiveResult, error)
	GetResultsByPurchase(purchaseID uint) ([]models.IncentiveResult, error)
	IncrementResultAttempt(resultID uint, submittedAt time.Time) error

	// MarkResultVerified awards the discount for a slot. The write only
	// applies while the slot is not already verified and the owning
	// purchase is still active. Returns whether the award was applied.
	MarkResultVerified(resultID uint, awardedBps int, reason, metadataJSON string) (bool, error)
	MarkResultRejected(resultID uint, reason, metadataJSON string) (bool, error)
	MarkResultPendingManual(resultID uint, reason, metadataJSON string) (bool, error)
}

// ReferralClaimRepository defines the interface for the durable referee
// claimed-set backing referral verification
type ReferralClaimRepository interface {
	// Claim records that the referee purchase has been used in a referral.
	// Returns true when this call inserted the claim and false when the
	// referee was already claimed by an earlier call.
	Claim(claim *models.ReferralClaim) (bool, error)
	Contains(refereePurchaseUUID string) (bool, error)
	GetByReferee(refereePurchaseUUID string) (*models.ReferralClaim, error)
	CountByReferrer(referrerPurchaseUUID string) (int64, error)
	Release(refereePurchaseUUID string) error
}

// CheckInCodeRepository defines the interface for venue check-in codes
type CheckInCodeRepository interface {
	Create(code *models.CheckInCode) error
	// CreateBatch inserts a freshly generated code batch in one statement.
	// The unique index on code rejects the whole batch on a collision.
	CreateBatch(codes []*models.CheckInCode) error
	GetByCode(eventID, code string) (*models.CheckInCode, error)
	// Consume marks a code as used by the given purchase. The update only
	// applies while the code is unused and unexpired, so two concurrent
	// submissions of the same code cannot both succeed. Returns whether
	// this call consumed the code.
	Consume(eventID, code, purchaseUUID string, now time.Time) (bool, error)
	ListByEvent(eventID string) ([]models.CheckInCode, error)
	CountUnused(eventID string) (int64, error)
}

// ApiClientRepository defines the interface for API client credentials
type ApiClientRepository interface {
	Create(client *models.ApiClient) error
	GetByID(id uint) (*models.ApiClient, error)
	GetByKeyHash(hash string) (*models.ApiClient, error)
	UpdateKeyLastUsedAt(id uint, usedAt time.Time) error
	Revoke(id uint) error
	List(offset, limit int) ([]models.ApiClient, error)
}

// WebhookEventRepository defines the interface for the payment webhook journal
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless one with the same
	// provider/provider_event_id pair was already recorded. Returns
	// whether the event was newly created along with the stored row.
	CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	GetByProviderEventID(provider, providerEventID string) (*models.PaymentWebhookEvent, error)
	ListUnprocessed(limit int) ([]models.PaymentWebhookEvent, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Purchase      PurchaseRepository
	Incentive     IncentiveRepository
	ReferralClaim ReferralClaimRepository
	CheckInCode   CheckInCodeRepository
	ApiClient     ApiClientRepository
	WebhookEvent  WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Purchase:      NewPurchaseRepository(db),
		Incentive:     NewIncentiveRepository(db),
		ReferralClaim: NewReferralClaimRepository(db),
		CheckInCode:   NewCheckInCodeRepository(db),
		ApiClient:     NewApiClientRepository(db),
		WebhookEvent:  NewWebhookEventRepository(db),
	}
}
