package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/app/repository"
	apperrors "github.com/ikkim/marketplace-ingest/internal/errors"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrStoreNotFound    = errors.New("매장을 찾을 수 없습니다")
	ErrStoreHasProducts = errors.New("상품이 남아있는 매장은 삭제할 수 없습니다")
)

type StoreListOptions struct {
	Type     model.StoreType
	Search   string
	Page     int // 페이지 번호 (1부터 시작)
	PageSize int // 페이지당 개수
}

// Geocoder resolves an address to coordinates. Both may be nil when the
// address is unknown.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng *float64, err error)
}

type StoreService interface {
	ListStores(opts StoreListOptions) ([]model.Store, int64, error)
	GetStoreByID(id uint) (*model.Store, error)
	DeleteStore(id uint) error
	EnsureStore(ctx context.Context, spec scraper.StoreSpec, actor string) (*model.Store, error)
}

type storeService struct {
	db        *gorm.DB
	storeRepo repository.StoreRepository
	geocoder  Geocoder
}

// NewStoreService geocoder may be nil; stores are then created without
// coordinates unless the profile carries them.
func NewStoreService(db *gorm.DB, storeRepo repository.StoreRepository, geocoder Geocoder) StoreService {
	return &storeService{
		db:        db,
		storeRepo: storeRepo,
		geocoder:  geocoder,
	}
}

func (s *storeService) ListStores(opts StoreListOptions) ([]model.Store, int64, error) {
	filter := repository.StoreFilter{
		Type:   opts.Type,
		Search: opts.Search,
	}
	if opts.PageSize > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		filter.Limit = opts.PageSize
		filter.Offset = (page - 1) * opts.PageSize
	}
	return s.storeRepo.FindAll(filter)
}

func (s *storeService) GetStoreByID(id uint) (*model.Store, error) {
	store, err := s.storeRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	return store, nil
}

func (s *storeService) DeleteStore(id uint) error {
	if _, err := s.GetStoreByID(id); err != nil {
		return err
	}
	if err := s.storeRepo.Delete(id); err != nil {
		if errors.Is(err, repository.ErrStoreHasProducts) {
			return ErrStoreHasProducts
		}
		return err
	}
	logger.Info("Store deleted", map[string]interface{}{
		"store_id": id,
	})
	return nil
}

// EnsureStore returns the store described by spec, creating it on first use.
// Stores are matched by slug; a soft-deleted store is restored rather than
// recreated. Fields the stored row lacks are filled from spec, nothing else is
// overwritten.
func (s *storeService) EnsureStore(ctx context.Context, spec scraper.StoreSpec, actor string) (*model.Store, error) {
	slug := model.GenerateSlug(spec.Name)
	if slug == "" {
		return nil, fmt.Errorf("store name %q yields an empty slug", spec.Name)
	}

	repo := repository.NewStoreRepository(s.db.WithContext(ctx))

	store, err := repo.FindBySlug(slug)
	if err != nil {
		return nil, err
	}

	if store == nil {
		store = s.newStore(ctx, spec, slug, actor)
		err := repo.Create(store)
		if err == nil {
			logger.Info("Store created for scrape profile", map[string]interface{}{
				"store_id": store.ID,
				"slug":     slug,
				"type":     store.Type,
			})
			return store, nil
		}
		if !apperrors.IsUniqueViolation(err) {
			return nil, err
		}
		// 다른 실행이 먼저 만든 경우
		store, err = repo.FindBySlug(slug)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, fmt.Errorf("store %q vanished after conflicting insert", slug)
		}
	}

	if store.DeletedAt.Valid {
		if err := repo.Restore(store.ID); err != nil {
			return nil, err
		}
		store.DeletedAt = gorm.DeletedAt{}
		logger.Info("Soft-deleted store restored", map[string]interface{}{
			"store_id": store.ID,
			"slug":     slug,
		})
	}

	if fillStoreGaps(store, spec) {
		if err := repo.Update(store); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *storeService) newStore(ctx context.Context, spec scraper.StoreSpec, slug, actor string) *model.Store {
	store := &model.Store{
		Name:        strings.TrimSpace(spec.Name),
		Slug:        slug,
		Type:        model.StoreType(spec.Type),
		Address:     spec.Address,
		Latitude:    spec.Latitude,
		Longitude:   spec.Longitude,
		HomepageURL: spec.HomepageURL,
		ImageURL:    spec.ImageURL,
		CreatedBy:   actor,
	}

	if s.geocoder != nil && store.Address != "" && (store.Latitude == nil || store.Longitude == nil) {
		lat, lng, err := s.geocoder.Geocode(ctx, store.Address)
		if err != nil {
			logger.Warn("Failed to geocode store address", map[string]interface{}{
				"slug":  slug,
				"error": err.Error(),
			})
		} else {
			store.Latitude, store.Longitude = lat, lng
		}
	}
	return store
}

func fillStoreGaps(store *model.Store, spec scraper.StoreSpec) bool {
	changed := false
	fill := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	fill(&store.Address, spec.Address)
	fill(&store.HomepageURL, spec.HomepageURL)
	fill(&store.ImageURL, spec.ImageURL)

	if store.Latitude == nil && store.Longitude == nil && spec.Latitude != nil && spec.Longitude != nil {
		store.Latitude, store.Longitude = spec.Latitude, spec.Longitude
		changed = true
	}
	return changed
}
