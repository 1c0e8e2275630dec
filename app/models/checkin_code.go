package models

import "time"

// CheckInCode is a single-use code handed out at the venue (QR, NFC, kiosk —
// the engine does not care how it reaches the buyer). Consumption is a guarded
// update on used_at so a code can never be redeemed twice.
type CheckInCode struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	EventID             string     `gorm:"type:varchar(64);not null;index" json:"event_id"`
	Code                string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	ExpiresAt           *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	UsedAt              *time.Time `gorm:"type:timestamp;default:null" json:"used_at,omitempty"`
	UsedByPurchaseUUID  string     `gorm:"type:varchar(64);default:null" json:"used_by_purchase_uuid,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// IsConsumed reports whether the code has already been redeemed.
func (c *CheckInCode) IsConsumed() bool {
	return c.UsedAt != nil
}

// IsExpired reports whether the code can no longer be redeemed.
func (c *CheckInCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
