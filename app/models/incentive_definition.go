package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// IncentiveType identifies which verifier adapter handles a definition.
type IncentiveType string

const (
	IncentiveTypeSocialShare    IncentiveType = "social_share"
	IncentiveTypeReferral       IncentiveType = "referral"
	IncentiveTypeCheckIn        IncentiveType = "check_in"
	IncentiveTypeSponsorSession IncentiveType = "sponsor_session"
	IncentiveTypeFeedback       IncentiveType = "feedback"
	IncentiveTypeManual         IncentiveType = "manual"
)

// IncentiveTypes lists every supported incentive type in dispatch order.
func IncentiveTypes() []IncentiveType {
	return []IncentiveType{
		IncentiveTypeSocialShare,
		IncentiveTypeReferral,
		IncentiveTypeCheckIn,
		IncentiveTypeSponsorSession,
		IncentiveTypeFeedback,
		IncentiveTypeManual,
	}
}

// IsValidIncentiveType reports whether t is one of the supported types.
func IsValidIncentiveType(t IncentiveType) bool {
	for _, known := range IncentiveTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// MaxDiscountBps caps both a single definition and the aggregated discount of
// a purchase at 100%.
const MaxDiscountBps = 10000

// IncentiveDefinition is one quest authored by the campaign editor: what the
// buyer has to do, how it is verified and how many basis points it is worth.
// Definitions are immutable from the engine's point of view; the editor
// replaces them wholesale per event.
type IncentiveDefinition struct {
	ID                 uint          `gorm:"primaryKey" json:"id"`
	DefinitionUUID     string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"definition_uuid" validate:"required,min=8,max=64"`
	EventID            string        `gorm:"type:varchar(64);not null;index:idx_incentive_definitions_event" json:"event_id" validate:"required,max=64"`
	IncentiveType      IncentiveType `gorm:"type:varchar(32);not null;index" json:"incentive_type" validate:"required,oneof=social_share referral check_in sponsor_session feedback manual"`
	DiscountBps        int           `gorm:"not null" json:"discount_bps" validate:"gte=1,lte=10000"`
	Description        string        `gorm:"type:text" json:"description" validate:"max=2000"`
	ExpiresAt          *time.Time    `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	VerificationConfig string        `gorm:"type:longtext" json:"verification_config,omitempty"`
	Active             bool          `gorm:"not null;default:true" json:"active"`
	AttemptCount       int64         `gorm:"not null;default:0" json:"attempt_count"`
	VerifiedCount      int64         `gorm:"not null;default:0" json:"verified_count"`
	RejectedCount      int64         `gorm:"not null;default:0" json:"rejected_count"`
	PendingCount       int64         `gorm:"not null;default:0" json:"pending_count"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *IncentiveDefinition) Validate() error {
	v := validator.New()

	return v.Struct(d)
}

// IsExpired reports whether the definition's claim window has passed.
func (d *IncentiveDefinition) IsExpired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}
