package models

import (
	"time"
)

// MFASecret stores a user's TOTP seed, AES-GCM encrypted at rest.
type MFASecret struct {
	BaseModel

	UserID     string     `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Secret     string     `gorm:"not null" json:"-"`
	Activated  bool       `gorm:"default:false" json:"activated"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
