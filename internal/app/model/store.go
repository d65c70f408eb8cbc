package model

import (
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

type StoreType string // 매장 유형

const (
	StoreTypePhysical StoreType = "physical" // 오프라인 매장
	StoreTypeOnline   StoreType = "online"   // 온라인 전용
	StoreTypeChain    StoreType = "chain"    // 체인/브랜드
)

// Store is a seller owning products. Scraped stores are created on the first
// run of their profile and matched by slug afterwards.
type Store struct {
	ID          uint      `gorm:"primarykey" json:"id"`                         // 고유 매장 ID
	Name        string    `gorm:"not null" json:"name"`                         // 매장명
	Slug        string    `gorm:"uniqueIndex;not null" json:"slug"`             // 매장명 기반 고유 식별자
	Type        StoreType `gorm:"type:varchar(20);index;not null" json:"type"` // physical | online | chain
	Address     string    `gorm:"type:text" json:"address,omitempty"`           // 상세 주소
	Latitude    *float64  `gorm:"type:decimal(10,8)" json:"latitude"`           // 위도 (WGS84)
	Longitude   *float64  `gorm:"type:decimal(11,8)" json:"longitude"`          // 경도 (WGS84)
	HomepageURL string    `json:"homepage_url,omitempty"`                       // 홈페이지
	ImageURL    string    `json:"image_url,omitempty"`                          // 매장 이미지
	CreatedBy   string    `gorm:"type:varchar(100)" json:"created_by,omitempty"`

	// 상품이 남아있는 매장은 삭제 불가
	Products []Product `gorm:"foreignKey:StoreID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`

	CreatedAt time.Time      `json:"created_at"`     // 생성 시각
	UpdatedAt time.Time      `json:"updated_at"`     // 수정 시각
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"` // 삭제 시각(소프트 삭제)
}

func (Store) TableName() string {
	return "stores"
}

// InStore reports whether products of this store qualify for the in-store tag.
func (s *Store) InStore() bool {
	return s.Type == StoreTypePhysical && strings.TrimSpace(s.Address) != ""
}

var (
	slugInvalid = regexp.MustCompile(`[^\p{L}\p{N}-]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// GenerateSlug는 매장명으로 URL용 slug를 생성합니다
func GenerateSlug(name string) string {
	// 특수문자 제거 (한글, 영문, 숫자, 하이픈만 허용)
	slug := slugInvalid.ReplaceAllString(strings.TrimSpace(name), "-")

	// 연속된 하이픈을 하나로
	slug = slugDashes.ReplaceAllString(slug, "-")

	// 앞뒤 하이픈 제거
	slug = strings.Trim(slug, "-")

	// 소문자로 변환 (영문만)
	return strings.ToLower(slug)
}

// BeforeCreate는 매장 생성 전에 slug를 자동 생성합니다
func (s *Store) BeforeCreate(tx *gorm.DB) error {
	if s.Slug == "" {
		s.Slug = GenerateSlug(s.Name)
	}
	if s.Type == "" {
		s.Type = StoreTypeOnline
	}
	return nil
}
