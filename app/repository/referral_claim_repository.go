package repository

import (
	"github.com/QuestPassApp/QuestPass/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// referralClaimRepository implements the ReferralClaimRepository interface
type referralClaimRepository struct {
	db *gorm.DB
}

// NewReferralClaimRepository creates a new referral claim repository instance
func NewReferralClaimRepository(db *gorm.DB) ReferralClaimRepository {
	return &referralClaimRepository{db: db}
}

// Claim inserts the referee into the claimed-set. The unique index on the
// referee UUID turns a duplicate insert into a no-op, so exactly one of any
// number of concurrent callers wins.
func (r *referralClaimRepository) Claim(claim *models.ReferralClaim) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "referee_purchase_uuid"},
		},
		DoNothing: true,
	}).Create(claim)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// Contains checks whether the referee purchase has already been claimed
func (r *referralClaimRepository) Contains(refereePurchaseUUID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.ReferralClaim{}).
		Where("referee_purchase_uuid = ?", refereePurchaseUUID).
		Count(&count).Error
	return count > 0, err
}

// GetByReferee retrieves the claim recorded for a referee purchase
func (r *referralClaimRepository) GetByReferee(refereePurchaseUUID string) (*models.ReferralClaim, error) {
	var claim models.ReferralClaim
	err := r.db.Where("referee_purchase_uuid = ?", refereePurchaseUUID).First(&claim).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// CountByReferrer returns how many referees a referrer purchase has claimed
func (r *referralClaimRepository) CountByReferrer(referrerPurchaseUUID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.ReferralClaim{}).
		Where("referrer_purchase_uuid = ?", referrerPurchaseUUID).
		Count(&count).Error
	return count, err
}

// Release removes a claim so the referee can be referred again. Used when a
// verification that claimed the referee could not be committed afterwards.
func (r *referralClaimRepository) Release(refereePurchaseUUID string) error {
	return r.db.Where("referee_purchase_uuid = ?", refereePurchaseUUID).
		Delete(&models.ReferralClaim{}).Error
}
