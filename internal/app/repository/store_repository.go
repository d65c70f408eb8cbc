package repository

import (
	"errors"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
)

// ErrStoreHasProducts 상품이 남아있는 매장 삭제 시도
var ErrStoreHasProducts = errors.New("store still owns products")

type StoreFilter struct {
	Type   model.StoreType
	Search string
	Limit  int
	Offset int
}

type StoreRepository interface {
	Create(store *model.Store) error
	Update(store *model.Store) error
	Delete(id uint) error
	Restore(id uint) error
	FindAll(filter StoreFilter) ([]model.Store, int64, error)
	FindByID(id uint) (*model.Store, error)
	FindBySlug(slug string) (*model.Store, error)
}

type storeRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) StoreRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) Create(store *model.Store) error {
	logger.Debug("Creating store in database", map[string]interface{}{
		"name": store.Name,
		"type": store.Type,
	})

	if err := r.db.Create(store).Error; err != nil {
		logger.Error("Failed to create store in database", err, map[string]interface{}{
			"name": store.Name,
			"type": store.Type,
		})
		return err
	}

	logger.Debug("Store created in database", map[string]interface{}{
		"store_id": store.ID,
		"slug":     store.Slug,
	})
	return nil
}

func (r *storeRepository) Update(store *model.Store) error {
	logger.Debug("Updating store in database", map[string]interface{}{
		"store_id": store.ID,
		"name":     store.Name,
	})

	if err := r.db.Save(store).Error; err != nil {
		logger.Error("Failed to update store in database", err, map[string]interface{}{
			"store_id": store.ID,
		})
		return err
	}
	return nil
}

// Delete soft-deletes the store. Stores that still own products are refused.
func (r *storeRepository) Delete(id uint) error {
	logger.Debug("Deleting store from database", map[string]interface{}{
		"store_id": id,
	})

	var count int64
	if err := r.db.Model(&model.Product{}).Where("store_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrStoreHasProducts
	}

	if err := r.db.Delete(&model.Store{}, id).Error; err != nil {
		logger.Error("Failed to delete store from database", err, map[string]interface{}{
			"store_id": id,
		})
		return err
	}
	return nil
}

// Restore clears the soft-delete marker.
func (r *storeRepository) Restore(id uint) error {
	if err := r.db.Unscoped().Model(&model.Store{}).Where("id = ?", id).Update("deleted_at", nil).Error; err != nil {
		logger.Error("Failed to restore store", err, map[string]interface{}{
			"store_id": id,
		})
		return err
	}
	return nil
}

func (r *storeRepository) FindAll(filter StoreFilter) ([]model.Store, int64, error) {
	logger.Debug("Finding stores", map[string]interface{}{
		"type":   filter.Type,
		"search": filter.Search,
	})

	query := r.db.Model(&model.Store{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR address LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logger.Error("Failed to count stores", err)
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var stores []model.Store
	if err := query.Order("name ASC").Find(&stores).Error; err != nil {
		logger.Error("Failed to find stores", err)
		return nil, 0, err
	}

	logger.Debug("Stores found", map[string]interface{}{
		"count": len(stores),
		"total": total,
	})
	return stores, total, nil
}

func (r *storeRepository) FindByID(id uint) (*model.Store, error) {
	var store model.Store
	if err := r.db.First(&store, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find store by ID", err, map[string]interface{}{
				"store_id": id,
			})
		}
		return nil, err
	}
	return &store, nil
}

// FindBySlug includes soft-deleted rows since the slug stays reserved.
// Returns nil, nil when no store has the slug.
func (r *storeRepository) FindBySlug(slug string) (*model.Store, error) {
	var store model.Store
	err := r.db.Unscoped().Where("slug = ?", slug).Limit(1).Find(&store).Error
	if err != nil {
		logger.Error("Failed to find store by slug", err, map[string]interface{}{
			"slug": slug,
		})
		return nil, err
	}
	if store.ID == 0 {
		return nil, nil
	}
	return &store, nil
}
