package repository

import (
	"strings"
	"time"

	"github.com/QuestPassApp/QuestPass/app/models"
	"gorm.io/gorm"
)

// apiClientRepository implements the ApiClientRepository interface
type apiClientRepository struct {
	db *gorm.DB
}

// NewApiClientRepository creates a new API client repository instance
func NewApiClientRepository(db *gorm.DB) ApiClientRepository {
	return &apiClientRepository{db: db}
}

// Create creates a new API client in the database
func (r *apiClientRepository) Create(client *models.ApiClient) error {
	return r.db.Create(client).Error
}

// GetByID retrieves an API client by its ID
func (r *apiClientRepository) GetByID(id uint) (*models.ApiClient, error) {
	var client models.ApiClient
	err := r.db.First(&client, id).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// GetByKeyHash resolves an active API key hash to its client
func (r *apiClientRepository) GetByKeyHash(hash string) (*models.ApiClient, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var client models.ApiClient
	err := r.db.Where("api_key_hash = ? AND revoked_at IS NULL", trimmed).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// UpdateKeyLastUsedAt records when a client key was last presented
func (r *apiClientRepository) UpdateKeyLastUsedAt(id uint, usedAt time.Time) error {
	return r.db.Model(&models.ApiClient{}).
		Where("id = ?", id).
		Update("api_key_last_used_at", &usedAt).Error
}

// Revoke disables a client key
func (r *apiClientRepository) Revoke(id uint) error {
	now := time.Now()
	return r.db.Model(&models.ApiClient{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"revoked_at": &now,
			"updated_at": now,
		}).Error
}

// List retrieves API clients with pagination
func (r *apiClientRepository) List(offset, limit int) ([]models.ApiClient, error) {
	var clients []models.ApiClient
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&clients).Error
	return clients, err
}
