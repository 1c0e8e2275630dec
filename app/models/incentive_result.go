package models

import "time"

const (
	VerificationStatusVerified      = "verified"
	VerificationStatusRejected      = "rejected"
	VerificationStatusPendingManual = "pending_manual"
)

// IncentiveResult is the persisted slot for one claimed incentive on one
// purchase. It is created lazily on the first verification attempt and keeps
// the latest outcome. A row that reached "verified" is immutable; rejected and
// pending_manual rows are overwritten by later attempts or by manual review.
type IncentiveResult struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	PurchaseID   uint       `gorm:"not null;index:ux_incentive_results_slot,unique,priority:1" json:"purchase_id"`
	DefinitionID uint       `gorm:"not null;index:ux_incentive_results_slot,unique,priority:2" json:"definition_id"`
	Status       string     `gorm:"type:varchar(16);not null;default:'pending_manual';index" json:"status"`
	AwardedBps   int        `gorm:"not null;default:0" json:"awarded_bps"`
	Reason       string     `gorm:"type:varchar(512)" json:"reason,omitempty"`
	MetadataJSON string     `gorm:"type:longtext" json:"metadata_json,omitempty"`
	EvidenceJSON string     `gorm:"type:longtext" json:"evidence_json,omitempty"`
	AttemptCount int        `gorm:"not null;default:0" json:"attempt_count"`
	SubmittedAt  time.Time  `gorm:"type:timestamp;not null" json:"submitted_at"`
	VerifiedAt   *time.Time `gorm:"type:timestamp;default:null" json:"verified_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsVerified reports whether the slot reached its terminal verified state.
func (r *IncentiveResult) IsVerified() bool {
	return r.Status == VerificationStatusVerified
}

// ContributesBps returns the basis points this slot adds to the purchase
// discount; only verified slots contribute.
func (r *IncentiveResult) ContributesBps() int {
	if !r.IsVerified() {
		return 0
	}
	return r.AwardedBps
}
