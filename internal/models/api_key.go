package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// API key status values. Keys are never physically deleted; revocation is a
// state transition so the audit trail survives.
const (
	APIKeyStatusActive  = "active"
	APIKeyStatusRevoked = "revoked"
)

// APIKey is a long-lived programmatic credential. Only the public prefix and
// the bcrypt hash of the full secret are persisted; the plaintext exists
// solely in the generation response.
type APIKey struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Name string `gorm:"not null" json:"name"`

	Prefix     string `gorm:"size:8;index;not null" json:"prefix"`
	SecretHash string `gorm:"not null" json:"-"`

	Scopes datatypes.JSONSlice[string] `json:"scopes"`

	Status    string     `gorm:"default:active;index" json:"status"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	RevokedBy string     `json:"revoked_by,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	RateLimitPerMinute int `gorm:"default:60" json:"rate_limit_per_minute"`

	UsageCount int64      `gorm:"default:0" json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	LastUsedIP string     `json:"last_used_ip,omitempty"`

	CreatedBy string    `gorm:"type:uuid;index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// Revoked reports whether the key has been soft-revoked.
func (k *APIKey) Revoked() bool {
	return k.Status == APIKeyStatusRevoked
}

// Expired reports whether the key's optional expiry has passed.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
