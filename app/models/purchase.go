package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	PurchaseStatusAuthorized = "authorized"
	PurchaseStatusActive     = "active"
	PurchaseStatusSettling   = "settling"
	PurchaseStatusSettled    = "settled"
	PurchaseStatusCancelled  = "cancelled"
)

// Purchase mirrors one ticket purchase reported by the payment rail and tracks
// the lifecycle window in which incentive verification is allowed.
type Purchase struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	PurchaseUUID        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"purchase_uuid" validate:"required,min=8,max=64"`
	EventID             string     `gorm:"type:varchar(64);not null;index" json:"event_id" validate:"required,max=64"`
	BuyerRef            string     `gorm:"type:varchar(191);default:null" json:"buyer_ref,omitempty"`
	BasePriceCents      int64      `gorm:"not null" json:"base_price_cents" validate:"gte=0"`
	Currency            string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency" validate:"len=3"`
	Status              string     `gorm:"type:varchar(16);not null;default:'authorized';index" json:"status" validate:"oneof=authorized active settling settled cancelled"`
	FrozenDiscountBps   *int       `gorm:"default:null" json:"frozen_discount_bps,omitempty"`
	FrozenNetPriceCents *int64     `gorm:"default:null" json:"frozen_net_price_cents,omitempty"`
	ActivatedAt         *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	SettledAt           *time.Time `gorm:"type:timestamp;default:null" json:"settled_at,omitempty"`
	CancelledAt         *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	IncentiveResults []IncentiveResult `gorm:"foreignKey:PurchaseID" json:"incentive_results,omitempty"`
}

func (p *Purchase) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// AcceptsVerifications reports whether new evidence submissions are allowed.
// Only an active purchase accepts them.
func (p *Purchase) AcceptsVerifications() bool {
	return p.Status == PurchaseStatusActive
}

// IsTerminal reports whether the purchase reached a final state.
func (p *Purchase) IsTerminal() bool {
	return p.Status == PurchaseStatusSettled || p.Status == PurchaseStatusCancelled
}

// CanTransitionTo reports whether the lifecycle allows moving from the current
// status to the target status. Cancellation is allowed from any state before
// settled; everything else follows authorized → active → settling → settled.
func (p *Purchase) CanTransitionTo(target string) bool {
	if target == PurchaseStatusCancelled {
		return p.Status != PurchaseStatusSettled && p.Status != PurchaseStatusCancelled
	}
	switch p.Status {
	case PurchaseStatusAuthorized:
		return target == PurchaseStatusActive
	case PurchaseStatusActive:
		return target == PurchaseStatusSettling
	case PurchaseStatusSettling:
		return target == PurchaseStatusSettled
	default:
		return false
	}
}
