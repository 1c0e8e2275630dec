package repository

import (
	"time"

	"github.com/QuestPassApp/QuestPass/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// incentiveRepository implements the IncentiveRepository interface
type incentiveRepository struct {
	db *gorm.DB
}

// NewIncentiveRepository creates a new incentive repository instance
func NewIncentiveRepository(db *gorm.DB) IncentiveRepository {
	return &incentiveRepository{db: db}
}

// CreateDefinition creates a new incentive definition in the database
func (r *incentiveRepository) CreateDefinition(def *models.IncentiveDefinition) error {
	return r.db.Create(def).Error
}

// UpsertDefinition inserts the definition or updates the existing row with
// the same definition UUID. Counter columns are left untouched on update.
func (r *incentiveRepository) UpsertDefinition(def *models.IncentiveDefinition) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "definition_uuid"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"event_id",
			"incentive_type",
			"discount_bps",
			"description",
			"expires_at",
			"verification_config",
			"active",
			"updated_at",
		}),
	}).Create(def).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("definition_uuid = ?", def.DefinitionUUID).First(def).Error
}

// GetDefinitionByID retrieves an incentive definition by its ID
func (r *incentiveRepository) GetDefinitionByID(id uint) (*models.IncentiveDefinition, error) {
	var def models.IncentiveDefinition
	err := r.db.First(&def, id).Error
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// GetDefinitionByUUID retrieves an incentive definition by its public UUID
func (r *incentiveRepository) GetDefinitionByUUID(definitionUUID string) (*models.IncentiveDefinition, error) {
	var def models.IncentiveDefinition
	err := r.db.Where("definition_uuid = ?", definitionUUID).First(&def).Error
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// GetDefinitionsByEvent retrieves all definitions configured for an event
func (r *incentiveRepository) GetDefinitionsByEvent(eventID string) ([]models.IncentiveDefinition, error) {
	var defs []models.IncentiveDefinition
	err := r.db.Where("event_id = ?", eventID).Order("created_at ASC").Find(&defs).Error
	return defs, err
}

// GetActiveDefinitionsByEvent retrieves the active definitions for an event
func (r *incentiveRepository) GetActiveDefinitionsByEvent(eventID string) ([]models.IncentiveDefinition, error) {
	var defs []models.IncentiveDefinition
	err := r.db.Where("event_id = ? AND active = ?", eventID, true).Order("created_at ASC").Find(&defs).Error
	return defs, err
}

// DeactivateDefinition marks a definition as inactive
func (r *incentiveRepository) DeactivateDefinition(definitionUUID string) error {
	return r.db.Model(&models.IncentiveDefinition{}).
		Where("definition_uuid = ?", definitionUUID).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now(),
		}).Error
}

// CountDefinitions returns the total number of incentive definitions
func (r *incentiveRepository) CountDefinitions() (int64, error) {
	var count int64
	err := r.db.Model(&models.IncentiveDefinition{}).Count(&count).Error
	return count, err
}

// GetOrCreateResult returns the unique result slot for a purchase/definition
// pair, inserting it on first use. The unique index on the pair makes the
// insert a no-op when another caller created the slot first.
func (r *incentiveRepository) GetOrCreateResult(purchaseID, definitionID uint) (*models.IncentiveResult, bool, error) {
	slot := models.IncentiveResult{
		PurchaseID:   purchaseID,
		DefinitionID: definitionID,
		Status:       models.VerificationStatusPendingManual,
		SubmittedAt:  time.Now(),
	}
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "purchase_id"},
			{Name: "definition_id"},
		},
		DoNothing: true,
	}).Create(&slot)
	if tx.Error != nil {
		return nil, false, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.IncentiveResult
	if err := r.db.Where("purchase_id = ? AND definition_id = ?", purchaseID, definitionID).
		First(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, created, nil
}

// GetResult retrieves the result slot for a purchase/definition pair
func (r *incentiveRepository) GetResult(purchaseID, definitionID uint) (*models.IncentiveResult, error) {
	var result models.IncentiveResult
	err := r.db.Where("purchase_id = ? AND definition_id = ?", purchaseID, definitionID).First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetResultsByPurchase retrieves all result slots belonging to a purchase
func (r *incentiveRepository) GetResultsByPurchase(purchaseID uint) ([]models.IncentiveResult, error) {
	var results []models.IncentiveResult
	err := r.db.Where("purchase_id = ?", purchaseID).Order("id ASC").Find(&results).Error
	return results, err
}

// IncrementResultAttempt bumps the attempt counter for a result slot
func (r *incentiveRepository) IncrementResultAttempt(resultID uint, submittedAt time.Time) error {
	return r.db.Model(&models.IncentiveResult{}).
		Where("id = ?", resultID).
		Updates(map[string]interface{}{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"submitted_at":  submittedAt,
			"updated_at":    time.Now(),
		}).Error
}

// MarkResultVerified awards the discount for a slot. Inside a single
// transaction the owning purchase is re-checked to still be active, then the
// slot is updated unless an earlier call already verified it. This keeps the
// award from landing on a purchase that was cancelled or settled in the
// meantime and from being counted twice.
func (r *incentiveRepository) MarkResultVerified(resultID uint, awardedBps int, reason, metadataJSON string) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var result models.IncentiveResult
		if err := tx.First(&result, resultID).Error; err != nil {
			return err
		}

		var purchase models.Purchase
		if err := tx.First(&purchase, result.PurchaseID).Error; err != nil {
			return err
		}
		if !purchase.AcceptsVerifications() {
			return nil
		}

		now := time.Now()
		res := tx.Model(&models.IncentiveResult{}).
			Where("id = ? AND status <> ?", resultID, models.VerificationStatusVerified).
			Updates(map[string]interface{}{
				"status":        models.VerificationStatusVerified,
				"awarded_bps":   awardedBps,
				"reason":        reason,
				"metadata_json": metadataJSON,
				"verified_at":   &now,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		return nil
	})
	return applied, err
}

// MarkResultRejected records a rejection. A slot that was already verified
// keeps its award.
func (r *incentiveRepository) MarkResultRejected(resultID uint, reason, metadataJSON string) (bool, error) {
	return r.updateResultGuarded(resultID, models.VerificationStatusRejected, reason, metadataJSON)
}

// MarkResultPendingManual parks a slot for manual review. A slot that was
// already verified keeps its award.
func (r *incentiveRepository) MarkResultPendingManual(resultID uint, reason, metadataJSON string) (bool, error) {
	return r.updateResultGuarded(resultID, models.VerificationStatusPendingManual, reason, metadataJSON)
}

func (r *incentiveRepository) updateResultGuarded(resultID uint, status, reason, metadataJSON string) (bool, error) {
	tx := r.db.Model(&models.IncentiveResult{}).
		Where("id = ? AND status <> ?", resultID, models.VerificationStatusVerified).
		Updates(map[string]interface{}{
			"status":        status,
			"awarded_bps":   0,
			"reason":        reason,
			"metadata_json": metadataJSON,
			"updated_at":    time.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
