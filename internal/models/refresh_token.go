package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reasons recorded when a refresh token is revoked.
const (
	RevokeReasonRotation = "rotation"
	RevokeReasonLogout   = "logout"
	RevokeReasonSecurity = "security"
	RevokeReasonDevice   = "device_removed"
)

// RefreshToken is a single-use rotating credential for mobile clients.
// TokenFamily groups every token descended from one login so a whole
// lineage can be revoked at once. At most one token per family is valid
// outside the post-rotation grace window.
type RefreshToken struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User  `gorm:"foreignKey:UserID" json:"-"`
	DeviceID string `gorm:"not null;index" json:"device_id"`

	TokenHash   string `gorm:"uniqueIndex;not null" json:"-"`
	TokenFamily string `gorm:"type:uuid;not null;index" json:"token_family"`

	ExpiresAt     time.Time  `gorm:"index" json:"expires_at"`
	RevokedAt     *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Revoked reports whether the token has been invalidated.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token's lifetime has passed.
func (t *RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
