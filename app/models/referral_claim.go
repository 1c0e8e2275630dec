package models

import "time"

// ReferralClaim is the durable claimed-set for referral verification: one row
// per referee purchase that has already been credited to a referrer. The
// unique index on the referee UUID is what makes "at most one referral per
// referee, system wide" hold across processes — inserting a duplicate is a
// no-op instead of a second award.
type ReferralClaim struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	RefereePurchaseUUID  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"referee_purchase_uuid"`
	ReferrerPurchaseUUID string    `gorm:"type:varchar(64);not null;index" json:"referrer_purchase_uuid"`
	DefinitionUUID       string    `gorm:"type:varchar(64);not null" json:"definition_uuid"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
}
