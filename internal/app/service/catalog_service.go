package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/ikkim/marketplace-ingest/internal/app/repository"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
)

// ImageDownloader fetches a binary resource. *scraper.HTTPFetcher satisfies it.
type ImageDownloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// ImageMirror copies a product image to object storage and returns its public URL.
type ImageMirror interface {
	PutImage(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// CatalogService persists scraped records: store resolution, the product
// upsert and tagging. It implements scraper.Catalog.
type CatalogService struct {
	db         *gorm.DB
	stores     StoreService
	downloader ImageDownloader
	mirror     ImageMirror
}

var _ scraper.Catalog = (*CatalogService)(nil)

// NewCatalogService downloader and mirror may be nil. Without a downloader
// images are referenced by URL only.
func NewCatalogService(db *gorm.DB, stores StoreService, downloader ImageDownloader, mirror ImageMirror) *CatalogService {
	return &CatalogService{
		db:         db,
		stores:     stores,
		downloader: downloader,
		mirror:     mirror,
	}
}

func (s *CatalogService) EnsureStore(ctx context.Context, spec scraper.StoreSpec, actor string) (*scraper.StoreInfo, error) {
	store, err := s.stores.EnsureStore(ctx, spec, actor)
	if err != nil {
		return nil, err
	}
	return &scraper.StoreInfo{
		ID:      store.ID,
		InStore: store.InStore(),
	}, nil
}

// Apply upserts rec and links opts.Tags in a single transaction: a tagging
// failure rolls the product write back too. Image download happens before the
// transaction and its failure only produces a warning.
func (s *CatalogService) Apply(ctx context.Context, storeID uint, rec scraper.Normalized, opts scraper.ApplyOptions) (*scraper.ApplyResult, error) {
	var warnings []string

	var image *ImagePayload
	if opts.DownloadImages && rec.ImageURL != "" && s.downloader != nil {
		fresh, err := s.imageChanged(ctx, storeID, rec)
		if err != nil {
			return nil, &scraper.StageError{Stage: scraper.StageUpserting, Err: err}
		}
		if fresh {
			var warning string
			image, warning = s.fetchImage(ctx, rec.ImageURL)
			if warning != "" {
				warnings = append(warnings, warning)
			}
		}
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, &scraper.StageError{Stage: scraper.StageUpserting, Err: tx.Error}
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	result, err := upsertProduct(repository.NewProductRepository(tx), storeID, rec, image, opts.Actor)
	if err != nil {
		tx.Rollback()
		return nil, &scraper.StageError{Stage: scraper.StageUpserting, Err: err}
	}

	if _, err := tagProduct(repository.NewTagRepository(tx), result.ProductID, opts.Tags); err != nil {
		tx.Rollback()
		return nil, &scraper.StageError{Stage: scraper.StageTagging, Err: err}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &scraper.StageError{Stage: scraper.StageUpserting, Err: err}
	}

	return &scraper.ApplyResult{
		ProductID: result.ProductID,
		Outcome:   result.Outcome,
		Warnings:  warnings,
	}, nil
}

// imageChanged reports whether the image URL differs from what the matching
// row already has, so unchanged images are not downloaded on every run.
func (s *CatalogService) imageChanged(ctx context.Context, storeID uint, rec scraper.Normalized) (bool, error) {
	existing, _, err := matchProduct(repository.NewProductRepository(s.db.WithContext(ctx)), storeID, rec)
	if err != nil {
		return false, err
	}
	return existing == nil || existing.ImageURL != rec.ImageURL, nil
}

func (s *CatalogService) fetchImage(ctx context.Context, url string) (*ImagePayload, string) {
	data, _, err := s.downloader.Download(ctx, url)
	if err != nil {
		logger.Warn("Failed to download product image", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		return nil, fmt.Sprintf("image download failed: %v", err)
	}

	// 서버가 보낸 Content-Type 대신 실제 바이트로 판별
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Sprintf("image url returned %s, not an image", mtype.String())
	}

	payload := &ImagePayload{
		SourceURL:   url,
		Data:        data,
		Filename:    imageFilename(url, mtype.Extension()),
		ContentType: mtype.String(),
	}

	if s.mirror != nil {
		key := uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String() + mtype.Extension()
		mirrorURL, err := s.mirror.PutImage(ctx, key, data, payload.ContentType)
		if err != nil {
			logger.Warn("Failed to mirror product image", map[string]interface{}{
				"url":   url,
				"error": err.Error(),
			})
			return payload, fmt.Sprintf("image mirror failed: %v", err)
		}
		payload.MirrorURL = mirrorURL
	}
	return payload, ""
}

func imageFilename(url, ext string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	name := path.Base(url)
	if name == "" || name == "." || name == "/" {
		name = "image"
	}
	if path.Ext(name) == "" {
		name += ext
	}
	return name
}
