package repository

import (
	"strings"
	"time"

	"github.com/QuestPassApp/QuestPass/app/models"
	"gorm.io/gorm"
)

// purchaseRepository implements the PurchaseRepository interface
type purchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a new purchase repository instance
func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

// Create creates a new purchase in the database
func (r *purchaseRepository) Create(purchase *models.Purchase) error {
	return r.db.Create(purchase).Error
}

// GetByID retrieves a purchase by its ID
func (r *purchaseRepository) GetByID(id uint) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.First(&purchase, id).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// GetByUUID retrieves a purchase by its public UUID
func (r *purchaseRepository) GetByUUID(purchaseUUID string) (*models.Purchase, error) {
	trimmed := strings.TrimSpace(purchaseUUID)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var purchase models.Purchase
	err := r.db.Where("purchase_uuid = ?", trimmed).First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// GetByUUIDWithResults retrieves a purchase with its incentive results preloaded
func (r *purchaseRepository) GetByUUIDWithResults(purchaseUUID string) (*models.Purchase, error) {
	trimmed := strings.TrimSpace(purchaseUUID)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var purchase models.Purchase
	err := r.db.Preload("IncentiveResults").Where("purchase_uuid = ?", trimmed).First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// Exists checks whether a purchase with the given UUID is present
func (r *purchaseRepository) Exists(purchaseUUID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Purchase{}).Where("purchase_uuid = ?", purchaseUUID).Count(&count).Error
	return count > 0, err
}

// Update updates an existing purchase in the database
func (r *purchaseRepository) Update(purchase *models.Purchase) error {
	return r.db.Save(purchase).Error
}

// List retrieves purchases with pagination
func (r *purchaseRepository) List(offset, limit int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&purchases).Error
	return purchases, err
}

// Count returns the total number of purchases
func (r *purchaseRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Purchase{}).Count(&count).Error
	return count, err
}

// CountByEvent returns the number of purchases for a single event
func (r *purchaseRepository) CountByEvent(eventID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Purchase{}).Where("event_id = ?", eventID).Count(&count).Error
	return count, err
}

// TransitionStatus performs a guarded status change on a purchase
func (r *purchaseRepository) TransitionStatus(purchaseUUID, from, to string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for column, value := range extra {
		updates[column] = value
	}
	tx := r.db.Model(&models.Purchase{}).
		Where("purchase_uuid = ? AND status = ?", purchaseUUID, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
