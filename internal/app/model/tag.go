package model

import (
	"strings"
	"time"
)

const (
	TagCategoryCategory   = "category"   // 사용자에게 노출되는 분류
	TagCategoryProvenance = "provenance" // 수집 경로 등 내부 표시용
)

// Tag classifies products. Tags carry both user-facing categories and internal
// bookkeeping markers (in-store, source:<site>, synthetic); Category tells them apart.
// 상품에 연결되는 태그
type Tag struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"` // 태그 이름 (예: "in-store")
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Category    string    `gorm:"type:varchar(20);index" json:"category"` // category | provenance
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Tag) TableName() string {
	return "tags"
}

// ProductTag represents the many-to-many relationship between products and tags
// 상품과 태그의 다대다 관계
type ProductTag struct {
	ProductID uint      `gorm:"primaryKey;index" json:"product_id"`
	TagID     uint      `gorm:"primaryKey;index" json:"tag_id"`
	Product   Product   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Tag       Tag       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProductTag) TableName() string {
	return "product_tags"
}

var provenanceTags = map[string]bool{
	"in-store":  true,
	"synthetic": true,
	"test-data": true,
}

// TagCategory returns the category a tag name is created with.
func TagCategory(name string) string {
	if provenanceTags[name] || strings.HasPrefix(name, "source:") {
		return TagCategoryProvenance
	}
	return TagCategoryCategory
}
