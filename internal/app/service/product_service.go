package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/app/repository"
	apperrors "github.com/ikkim/marketplace-ingest/internal/errors"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrEmptyName       = errors.New("product name is empty")
)

type ProductListOptions struct {
	StoreID *uint
	Tag     string
	Search  string
	Limit   int
	Offset  int
}

// UpsertResult is the outcome of reconciling one record with the catalog.
type UpsertResult struct {
	ProductID uint
	Outcome   scraper.Outcome
}

// ImagePayload is a downloaded product image ready to be stored on the row.
type ImagePayload struct {
	SourceURL   string
	Data        []byte
	Filename    string
	ContentType string
	MirrorURL   string
}

type ProductService interface {
	ListProducts(opts ProductListOptions) ([]model.Product, int64, error)
	GetProductByID(id uint) (*model.Product, error)
	Upsert(ctx context.Context, storeID uint, rec scraper.Normalized, image *ImagePayload, actor string) (*UpsertResult, error)
}

type productService struct {
	db          *gorm.DB
	productRepo repository.ProductRepository
}

func NewProductService(db *gorm.DB, productRepo repository.ProductRepository) ProductService {
	return &productService{
		db:          db,
		productRepo: productRepo,
	}
}

func (s *productService) ListProducts(opts ProductListOptions) ([]model.Product, int64, error) {
	return s.productRepo.FindWithFilter(repository.ProductFilter{
		StoreID: opts.StoreID,
		Tag:     opts.Tag,
		Search:  opts.Search,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

func (s *productService) GetProductByID(id uint) (*model.Product, error) {
	product, err := s.productRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

// Upsert reconciles rec with the store's inventory in its own transaction.
func (s *productService) Upsert(ctx context.Context, storeID uint, rec scraper.Normalized, image *ImagePayload, actor string) (*UpsertResult, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	result, err := upsertProduct(repository.NewProductRepository(tx), storeID, rec, image, actor)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

// upsertProduct matches rec by (store, sku) or (store, name), inserts when
// nothing matches and otherwise writes only the fields that changed. repo must
// be bound to a transaction. A unique violation on insert means a concurrent
// writer got there first: the row is re-read and the update path taken.
func upsertProduct(repo repository.ProductRepository, storeID uint, rec scraper.Normalized, image *ImagePayload, actor string) (*UpsertResult, error) {
	if rec.Name == "" {
		return nil, ErrEmptyName
	}

	existing, how, err := matchProduct(repo, storeID, rec)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		product := newProductFromRecord(storeID, rec, image, actor)
		err := repo.CreateGuarded(product)
		if err == nil {
			logger.Debug("Product inserted", map[string]interface{}{
				"product_id": product.ID,
				"store_id":   storeID,
				"match_key":  product.MatchKey,
			})
			return &UpsertResult{ProductID: product.ID, Outcome: scraper.OutcomeInserted}, nil
		}
		if !apperrors.IsUniqueViolation(err) {
			return nil, err
		}

		logger.Info("Insert lost a race, falling back to update", map[string]interface{}{
			"store_id":  storeID,
			"match_key": product.MatchKey,
		})
		existing, how, err = matchProduct(repo, storeID, rec)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: %v", scraper.ErrDuplicateConflict, err)
		}
	}

	fields := changedFields(existing, rec, how, image)
	if len(fields) == 0 {
		return &UpsertResult{ProductID: existing.ID, Outcome: scraper.OutcomeSkipped}, nil
	}
	fields["updated_by"] = actor

	if err := repo.UpdateFields(existing.ID, fields); err != nil {
		return nil, err
	}

	logger.Debug("Product updated", map[string]interface{}{
		"product_id": existing.ID,
		"store_id":   storeID,
		"fields":     len(fields) - 1,
	})
	return &UpsertResult{ProductID: existing.ID, Outcome: scraper.OutcomeUpdated}, nil
}

type matchKind int

const (
	matchedByName matchKind = iota
	matchedBySKU
	adoptedByName // SKU record matched a same-name row that had no SKU yet
)

func matchProduct(repo repository.ProductRepository, storeID uint, rec scraper.Normalized) (*model.Product, matchKind, error) {
	nameKey := model.ProductMatchKey("", rec.Name)

	if rec.SKU != "" {
		product, err := repo.FindByStoreAndSKU(storeID, rec.SKU)
		if err != nil || product != nil {
			return product, matchedBySKU, err
		}
		// name-keyed rows are exactly the ones without a SKU
		product, err = repo.FindByMatchKey(storeID, nameKey)
		return product, adoptedByName, err
	}

	product, err := repo.FindByMatchKey(storeID, nameKey)
	if err != nil || product != nil {
		return product, matchedByName, err
	}
	product, err = repo.FindByStoreAndName(storeID, rec.Name)
	return product, matchedByName, err
}

func newProductFromRecord(storeID uint, rec scraper.Normalized, image *ImagePayload, actor string) *model.Product {
	product := &model.Product{
		StoreID:     storeID,
		Name:        rec.Name,
		Description: rec.Description,
		Price:       rec.Price,
		Currency:    rec.Currency,
		SourceURL:   rec.SourceURL,
		ImageURL:    rec.ImageURL,
		MatchKey:    model.ProductMatchKey(rec.SKU, rec.Name),
		CreatedBy:   actor,
		UpdatedBy:   actor,
	}
	if rec.SKU != "" {
		sku := rec.SKU
		product.SKU = &sku
	}
	if image != nil {
		product.ImageData = image.Data
		product.ImageFilename = image.Filename
		product.ImageContentType = image.ContentType
		product.ImageMirrorURL = image.MirrorURL
	}
	return product
}

// changedFields compares mutable fields. Values the page did not provide (empty
// strings, nil price) never overwrite stored data.
func changedFields(existing *model.Product, rec scraper.Normalized, how matchKind, image *ImagePayload) map[string]interface{} {
	fields := make(map[string]interface{})

	switch how {
	case matchedBySKU:
		if rec.Name != existing.Name {
			fields["name"] = rec.Name
		}
	case adoptedByName:
		fields["sku"] = rec.SKU
		fields["match_key"] = model.ProductMatchKey(rec.SKU, rec.Name)
	}

	if rec.Description != "" && rec.Description != existing.Description {
		fields["description"] = rec.Description
	}
	if rec.Price != nil && (existing.Price == nil || !existing.Price.Equal(*rec.Price)) {
		fields["price"] = *rec.Price
	}
	if rec.Currency != "" && rec.Currency != existing.Currency {
		fields["currency"] = rec.Currency
	}
	if rec.SourceURL != "" && rec.SourceURL != existing.SourceURL {
		fields["source_url"] = rec.SourceURL
	}
	if rec.ImageURL != "" && rec.ImageURL != existing.ImageURL {
		fields["image_url"] = rec.ImageURL
		if image != nil {
			fields["image_data"] = image.Data
			fields["image_filename"] = image.Filename
			fields["image_content_type"] = image.ContentType
			fields["image_mirror_url"] = image.MirrorURL
		}
	}
	return fields
}
