package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product belongs to exactly one store. (store_id, sku) is unique when sku is
// set; (store_id, match_key) is unique always and backs name-keyed matching.
type Product struct {
	ID          uint             `gorm:"primarykey" json:"id"`
	StoreID     uint             `gorm:"not null;index;uniqueIndex:idx_products_store_sku;uniqueIndex:idx_products_store_match_key" json:"store_id"`
	Name        string           `gorm:"not null;index" json:"name"`
	Description string           `gorm:"type:text" json:"description,omitempty"`
	Price       *decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Currency    string           `gorm:"type:varchar(3)" json:"currency,omitempty"` // ISO 4217
	SourceURL   string           `gorm:"type:text" json:"source_url,omitempty"`     // 수집 원본 페이지
	SKU         *string          `gorm:"type:varchar(128);uniqueIndex:idx_products_store_sku" json:"sku,omitempty"`
	MatchKey    string           `gorm:"type:varchar(600);not null;uniqueIndex:idx_products_store_match_key" json:"-"`

	// 이미지: 원본 URL + 내려받은 바이트 + (선택) S3 미러
	ImageURL         string `gorm:"type:text" json:"image_url,omitempty"`
	ImageMirrorURL   string `gorm:"type:text" json:"image_mirror_url,omitempty"`
	ImageData        []byte `json:"-"`
	ImageFilename    string `gorm:"type:varchar(255)" json:"image_filename,omitempty"`
	ImageContentType string `gorm:"type:varchar(100)" json:"image_content_type,omitempty"`

	CreatedBy string    `gorm:"type:varchar(100)" json:"created_by,omitempty"`
	UpdatedBy string    `gorm:"type:varchar(100)" json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Store *Store `gorm:"foreignKey:StoreID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"store,omitempty"`
	Tags  []Tag  `gorm:"many2many:product_tags;" json:"tags,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// SKUValue returns the SKU or "" when unset.
func (p *Product) SKUValue() string {
	if p.SKU == nil {
		return ""
	}
	return *p.SKU
}

// ProductMatchKey is the per-store identity of a product: its SKU when known,
// its exact name otherwise.
func ProductMatchKey(sku, name string) string {
	if sku != "" {
		return "sku:" + sku
	}
	return "name:" + name
}
