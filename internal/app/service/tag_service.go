package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/app/repository"
	apperrors "github.com/ikkim/marketplace-ingest/internal/errors"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
)

type TagService interface {
	ListTags(category string) ([]model.Tag, error)
	GetProductTags(productID uint) ([]model.Tag, error)
	TagProduct(ctx context.Context, productID uint, names []string) (int, error)
}

type tagService struct {
	db      *gorm.DB
	tagRepo repository.TagRepository
}

func NewTagService(db *gorm.DB, tagRepo repository.TagRepository) TagService {
	return &tagService{db: db, tagRepo: tagRepo}
}

// ListTags 태그 목록 조회 (category가 비어 있으면 전체)
func (s *tagService) ListTags(category string) ([]model.Tag, error) {
	return s.tagRepo.FindAll(category)
}

func (s *tagService) GetProductTags(productID uint) ([]model.Tag, error) {
	return s.tagRepo.FindByProduct(productID)
}

// TagProduct links every named tag to the product in one transaction and
// returns the number of associations that were newly written.
func (s *tagService) TagProduct(ctx context.Context, productID uint, names []string) (int, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	linked, err := tagProduct(repository.NewTagRepository(tx), productID, names)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit().Error; err != nil {
		return 0, err
	}
	return linked, nil
}

// tagProduct is idempotent: tags are created on first use and existing links
// are left as they are.
func tagProduct(repo repository.TagRepository, productID uint, names []string) (int, error) {
	linked := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		tag, err := getOrCreateTag(repo, name)
		if err != nil {
			return linked, err
		}

		exists, err := repo.LinkExists(productID, tag.ID)
		if err != nil {
			return linked, err
		}
		if exists {
			continue
		}

		created, err := repo.Link(productID, tag.ID)
		if err != nil {
			return linked, fmt.Errorf("link tag %q: %w", name, err)
		}
		if created {
			linked++
		}
	}

	if linked > 0 {
		logger.Debug("Product tagged", map[string]interface{}{
			"product_id": productID,
			"linked":     linked,
		})
	}
	return linked, nil
}

func getOrCreateTag(repo repository.TagRepository, name string) (*model.Tag, error) {
	tag, err := repo.FindByName(name)
	if err != nil || tag != nil {
		return tag, err
	}

	tag = &model.Tag{Name: name, Category: model.TagCategory(name)}
	err = repo.CreateGuarded(tag)
	if err == nil {
		return tag, nil
	}
	if !apperrors.IsUniqueViolation(err) {
		return nil, fmt.Errorf("create tag %q: %w", name, err)
	}

	// 동시에 다른 실행이 같은 태그를 만든 경우
	tag, err = repo.FindByName(name)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, fmt.Errorf("tag %q vanished after conflicting insert", name)
	}
	return tag, nil
}
