package repository

import (
	"strings"
	"time"

	"github.com/QuestPassApp/QuestPass/app/models"
	"gorm.io/gorm"
)

// checkInCodeRepository implements the CheckInCodeRepository interface
type checkInCodeRepository struct {
	db *gorm.DB
}

// NewCheckInCodeRepository creates a new check-in code repository instance
func NewCheckInCodeRepository(db *gorm.DB) CheckInCodeRepository {
	return &checkInCodeRepository{db: db}
}

// Create creates a new check-in code in the database
func (r *checkInCodeRepository) Create(code *models.CheckInCode) error {
	return r.db.Create(code).Error
}

// CreateBatch inserts a batch of generated codes in one statement
func (r *checkInCodeRepository) CreateBatch(codes []*models.CheckInCode) error {
	if len(codes) == 0 {
		return nil
	}
	return r.db.Create(codes).Error
}

// GetByCode retrieves a check-in code for an event
func (r *checkInCodeRepository) GetByCode(eventID, code string) (*models.CheckInCode, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var stored models.CheckInCode
	err := r.db.Where("event_id = ? AND code = ?", eventID, trimmed).First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Consume marks a code as used by the given purchase. The guarded update
// applies only while the code is unused and unexpired, so exactly one of any
// number of concurrent submissions wins.
func (r *checkInCodeRepository) Consume(eventID, code, purchaseUUID string, now time.Time) (bool, error) {
	tx := r.db.Model(&models.CheckInCode{}).
		Where("event_id = ? AND code = ? AND used_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", eventID, code, now).
		Updates(map[string]interface{}{
			"used_at":               &now,
			"used_by_purchase_uuid": purchaseUUID,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ListByEvent retrieves every check-in code configured for an event
func (r *checkInCodeRepository) ListByEvent(eventID string) ([]models.CheckInCode, error) {
	var codes []models.CheckInCode
	err := r.db.Where("event_id = ?", eventID).Order("id ASC").Find(&codes).Error
	return codes, err
}

// CountUnused returns how many codes are still available for an event
func (r *checkInCodeRepository) CountUnused(eventID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.CheckInCode{}).
		Where("event_id = ? AND used_at IS NULL", eventID).
		Count(&count).Error
	return count, err
}
