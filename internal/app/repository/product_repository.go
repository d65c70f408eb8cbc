package repository

import (
	"errors"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
)

const productInsertSavepoint = "product_insert"

type ProductFilter struct {
	StoreID *uint
	Tag     string
	Search  string
	Limit   int
	Offset  int
}

type ProductRepository interface {
	Create(product *model.Product) error
	CreateGuarded(product *model.Product) error
	FindByID(id uint) (*model.Product, error)
	FindByStoreAndSKU(storeID uint, sku string) (*model.Product, error)
	FindByStoreAndName(storeID uint, name string) (*model.Product, error)
	FindByMatchKey(storeID uint, matchKey string) (*model.Product, error)
	FindWithFilter(filter ProductFilter) ([]model.Product, int64, error)
	UpdateFields(id uint, fields map[string]interface{}) error
	Count(storeID uint) (int64, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository binds the repository to db, which may be a transaction.
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(product *model.Product) error {
	logger.Debug("Creating product in database", map[string]interface{}{
		"name":     product.Name,
		"store_id": product.StoreID,
		"sku":      product.SKUValue(),
	})

	if err := r.db.Create(product).Error; err != nil {
		logger.Error("Failed to create product in database", err, map[string]interface{}{
			"name":     product.Name,
			"store_id": product.StoreID,
		})
		return err
	}

	logger.Debug("Product created in database", map[string]interface{}{
		"product_id": product.ID,
		"name":       product.Name,
		"store_id":   product.StoreID,
	})
	return nil
}

// CreateGuarded inserts inside a savepoint so a constraint violation leaves the
// surrounding transaction usable. The repository must be bound to a transaction.
func (r *productRepository) CreateGuarded(product *model.Product) error {
	if err := r.db.SavePoint(productInsertSavepoint).Error; err != nil {
		return err
	}
	if err := r.db.Create(product).Error; err != nil {
		if rbErr := r.db.RollbackTo(productInsertSavepoint).Error; rbErr != nil {
			logger.Error("Failed to roll back to savepoint", rbErr, map[string]interface{}{
				"savepoint": productInsertSavepoint,
			})
			return rbErr
		}
		logger.Debug("Product insert rejected", map[string]interface{}{
			"store_id":  product.StoreID,
			"match_key": product.MatchKey,
			"error":     err.Error(),
		})
		// rolled-back insert must not leave a stale primary key behind
		product.ID = 0
		return err
	}
	return nil
}

func (r *productRepository) FindByID(id uint) (*model.Product, error) {
	var product model.Product
	if err := r.db.Preload("Store").Preload("Tags").First(&product, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find product by ID", err, map[string]interface{}{
				"product_id": id,
			})
		}
		return nil, err
	}
	return &product, nil
}

// find returns nil, nil when nothing matches.
func (r *productRepository) find(query string, args ...interface{}) (*model.Product, error) {
	var product model.Product
	if err := r.db.Where(query, args...).Limit(1).Find(&product).Error; err != nil {
		logger.Error("Failed to look up product", err, map[string]interface{}{
			"query": query,
		})
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}

func (r *productRepository) FindByStoreAndSKU(storeID uint, sku string) (*model.Product, error) {
	return r.find("store_id = ? AND sku = ?", storeID, sku)
}

func (r *productRepository) FindByStoreAndName(storeID uint, name string) (*model.Product, error) {
	return r.find("store_id = ? AND name = ?", storeID, name)
}

func (r *productRepository) FindByMatchKey(storeID uint, matchKey string) (*model.Product, error) {
	return r.find("store_id = ? AND match_key = ?", storeID, matchKey)
}

func (r *productRepository) FindWithFilter(filter ProductFilter) ([]model.Product, int64, error) {
	logger.Debug("Finding products with filter", map[string]interface{}{
		"store_id": filter.StoreID,
		"tag":      filter.Tag,
		"search":   filter.Search,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})

	query := r.db.Model(&model.Product{})
	if filter.StoreID != nil {
		query = query.Where("products.store_id = ?", *filter.StoreID)
	}
	if filter.Tag != "" {
		query = query.
			Joins("JOIN product_tags ON product_tags.product_id = products.id").
			Joins("JOIN tags ON tags.id = product_tags.tag_id").
			Where("tags.name = ?", filter.Tag)
	}
	if filter.Search != "" {
		query = query.Where("products.name LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logger.Error("Failed to count products", err)
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var products []model.Product
	if err := query.Select("products.*").Preload("Tags").Order("products.id ASC").Find(&products).Error; err != nil {
		logger.Error("Failed to find products with filter", err)
		return nil, 0, err
	}

	logger.Debug("Products found with filter", map[string]interface{}{
		"count": len(products),
		"total": total,
	})
	return products, total, nil
}

// UpdateFields writes only the given columns. Callers pass only changed values.
func (r *productRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	logger.Debug("Updating product fields", map[string]interface{}{
		"product_id": id,
		"fields":     len(fields),
	})

	if err := r.db.Model(&model.Product{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		logger.Error("Failed to update product", err, map[string]interface{}{
			"product_id": id,
		})
		return err
	}
	return nil
}

func (r *productRepository) Count(storeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.Product{}).Where("store_id = ?", storeID).Count(&count).Error
	return count, err
}
