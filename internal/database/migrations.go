package database

import (
	"gorm.io/gorm"

	"github.com/argushq/argus/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.RefreshToken{},
		&models.Session{},
		&models.MFASecret{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}
