package repository

import (
	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tagInsertSavepoint = "tag_insert"

type TagRepository interface {
	FindAll(category string) ([]model.Tag, error)
	FindByName(name string) (*model.Tag, error)
	CreateGuarded(tag *model.Tag) error
	LinkExists(productID, tagID uint) (bool, error)
	Link(productID, tagID uint) (bool, error)
	FindByProduct(productID uint) ([]model.Tag, error)
}

type tagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

// FindAll 태그 목록 조회 (category가 비어 있으면 전체)
func (r *tagRepository) FindAll(category string) ([]model.Tag, error) {
	var tags []model.Tag
	query := r.db.Order("category ASC, name ASC")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Find(&tags).Error; err != nil {
		logger.Error("Failed to list tags", err, map[string]interface{}{
			"category": category,
		})
		return nil, err
	}
	return tags, nil
}

// FindByName returns nil, nil when the tag does not exist.
func (r *tagRepository) FindByName(name string) (*model.Tag, error) {
	var tag model.Tag
	if err := r.db.Where("name = ?", name).Limit(1).Find(&tag).Error; err != nil {
		logger.Error("Failed to find tag by name", err, map[string]interface{}{
			"tag": name,
		})
		return nil, err
	}
	if tag.ID == 0 {
		return nil, nil
	}
	return &tag, nil
}

// CreateGuarded inserts inside a savepoint; see productRepository.CreateGuarded.
func (r *tagRepository) CreateGuarded(tag *model.Tag) error {
	if err := r.db.SavePoint(tagInsertSavepoint).Error; err != nil {
		return err
	}
	if err := r.db.Create(tag).Error; err != nil {
		if rbErr := r.db.RollbackTo(tagInsertSavepoint).Error; rbErr != nil {
			logger.Error("Failed to roll back to savepoint", rbErr, map[string]interface{}{
				"savepoint": tagInsertSavepoint,
			})
			return rbErr
		}
		tag.ID = 0
		return err
	}

	logger.Debug("Tag created", map[string]interface{}{
		"tag_id":   tag.ID,
		"tag":      tag.Name,
		"category": tag.Category,
	})
	return nil
}

func (r *tagRepository) LinkExists(productID, tagID uint) (bool, error) {
	var count int64
	err := r.db.Model(&model.ProductTag{}).
		Where("product_id = ? AND tag_id = ?", productID, tagID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Link associates a product with a tag. It reports whether a new row was
// written; an existing association is left untouched.
func (r *tagRepository) Link(productID, tagID uint) (bool, error) {
	link := model.ProductTag{ProductID: productID, TagID: tagID}
	result := r.db.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&link)
	if result.Error != nil {
		logger.Error("Failed to link tag to product", result.Error, map[string]interface{}{
			"product_id": productID,
			"tag_id":     tagID,
		})
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *tagRepository) FindByProduct(productID uint) ([]model.Tag, error) {
	var tags []model.Tag
	err := r.db.
		Joins("JOIN product_tags ON product_tags.tag_id = tags.id").
		Where("product_tags.product_id = ?", productID).
		Order("tags.name ASC").
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}
