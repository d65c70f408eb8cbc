package model

import "time"

// APIKey is an operator credential for the admin endpoints. Only the hash of
// the key is stored; the plaintext is shown once when issued.
type APIKey struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	Operator   string     `gorm:"type:varchar(100);not null;index" json:"operator"` // 발급 대상 (actor로 기록됨)
	KeyHash    string     `gorm:"type:char(64);uniqueIndex;not null" json:"-"`       // blake2b-256 hex
	Prefix     string     `gorm:"type:varchar(12)" json:"prefix"`                   // 식별용 앞자리
	Revoked    bool       `gorm:"default:false;index" json:"revoked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
