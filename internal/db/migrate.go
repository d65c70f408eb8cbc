package db

import (
	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Models lists every table in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.Store{},
		&model.Product{},
		&model.Tag{},
		&model.ProductTag{},
		&model.APIKey{},
	}
}

// Migrate runs database migrations
func Migrate() error {
	return MigrateDB(DB)
}

// MigrateDB applies the schema to db and seeds the bookkeeping tags.
func MigrateDB(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	models := Models()
	if err := db.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	if err := seedTags(db); err != nil {
		logger.Error("Failed to seed initial data during migration", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}

// seedTags 수집 파이프라인이 사용하는 내부 표시용 태그 생성
func seedTags(db *gorm.DB) error {
	tags := []model.Tag{
		{Name: "in-store", Category: model.TagCategoryProvenance, Description: "오프라인 매장 카탈로그에서 수집된 상품"},
		{Name: "synthetic", Category: model.TagCategoryProvenance, Description: "생성된 샘플 데이터"},
		{Name: "test-data", Category: model.TagCategoryProvenance, Description: "테스트용 데이터"},
	}

	// 이미 있으면 건너뜀 (재실행 안전)
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tags)
	if result.Error != nil {
		return result.Error
	}

	logger.Info("Tags seeded", map[string]interface{}{
		"inserted": result.RowsAffected,
	})
	return nil
}
