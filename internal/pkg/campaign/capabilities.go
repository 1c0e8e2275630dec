package campaign

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/app/repository"
)

// dbCodeValidator consumes check-in codes atomically; a code verifies at most
// one purchase, enforced by the guarded update in the repository.
type dbCodeValidator struct {
	codes   repository.CheckInCodeRepository
	eventID string
}

func (v *dbCodeValidator) Validate(ctx context.Context, purchaseID, code string) (bool, error) {
	_ = ctx
	return v.codes.Consume(v.eventID, code, purchaseID, time.Now())
}

// dbClaimStore is the durable referee claimed-set; the unique index on the
// referee column makes Claim first-wins under concurrency.
type dbClaimStore struct {
	claims         repository.ReferralClaimRepository
	definitionUUID string
}

func (s *dbClaimStore) Contains(ctx context.Context, refereePurchaseID string) (bool, error) {
	_ = ctx
	return s.claims.Contains(refereePurchaseID)
}

func (s *dbClaimStore) Claim(ctx context.Context, referrerPurchaseID, refereePurchaseID string) (bool, error) {
	_ = ctx
	return s.claims.Claim(&models.ReferralClaim{
		RefereePurchaseUUID:  refereePurchaseID,
		ReferrerPurchaseUUID: referrerPurchaseID,
		DefinitionUUID:       s.definitionUUID,
	})
}

// dbPurchaseDirectory answers whether a purchase may serve as a referee: it
// has to exist and must not be cancelled.
type dbPurchaseDirectory struct {
	purchases repository.PurchaseRepository
}

func (d *dbPurchaseDirectory) QualifiesAsReferee(ctx context.Context, purchaseID string) (bool, error) {
	_ = ctx
	p, err := d.purchases.GetByUUID(purchaseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Status != models.PurchaseStatusCancelled, nil
}
