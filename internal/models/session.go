package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session backs a cookie-based interactive login. Only the digest of the
// session credential is stored. Sessions have an absolute lifetime; Touch
// updates LastActiveAt without moving ExpiresAt.
type Session struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"-"`

	TokenHash string `gorm:"uniqueIndex;not null" json:"-"`

	DeviceInfo string `json:"device_info"`
	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    time.Time `gorm:"index" json:"expires_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Expired reports whether the session's absolute lifetime has passed.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
