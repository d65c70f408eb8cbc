package repository

import (
	"time"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
)

type APIKeyRepository interface {
	Create(key *model.APIKey) error
	FindByID(id uint) (*model.APIKey, error)
	FindByHash(hash string) (*model.APIKey, error)
	FindByOperator(operator string) ([]model.APIKey, error)
	TouchLastUsed(id uint, at time.Time) error
	Revoke(id uint) error
}

type apiKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) Create(key *model.APIKey) error {
	if err := r.db.Create(key).Error; err != nil {
		logger.Error("Failed to create API key", err, map[string]interface{}{
			"operator": key.Operator,
		})
		return err
	}
	logger.Info("API key issued", map[string]interface{}{
		"key_id":   key.ID,
		"operator": key.Operator,
		"prefix":   key.Prefix,
	})
	return nil
}

// FindByID returns nil, nil for unknown IDs.
func (r *apiKeyRepository) FindByID(id uint) (*model.APIKey, error) {
	var key model.APIKey
	if err := r.db.Where("id = ?", id).Limit(1).Find(&key).Error; err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

// FindByHash returns nil, nil for unknown hashes.
func (r *apiKeyRepository) FindByHash(hash string) (*model.APIKey, error) {
	var key model.APIKey
	if err := r.db.Where("key_hash = ?", hash).Limit(1).Find(&key).Error; err != nil {
		logger.Error("Failed to look up API key", err)
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *apiKeyRepository) FindByOperator(operator string) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := r.db.Where("operator = ?", operator).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *apiKeyRepository) TouchLastUsed(id uint, at time.Time) error {
	return r.db.Model(&model.APIKey{}).Where("id = ?", id).UpdateColumn("last_used_at", at).Error
}

func (r *apiKeyRepository) Revoke(id uint) error {
	if err := r.db.Model(&model.APIKey{}).Where("id = ?", id).Update("revoked", true).Error; err != nil {
		logger.Error("Failed to revoke API key", err, map[string]interface{}{
			"key_id": id,
		})
		return err
	}
	return nil
}
