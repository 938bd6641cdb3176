package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/argushq/argus/internal/models"
)

// AuditEntry describes a single security-relevant event to record.
type AuditEntry struct {
	UserID    *string
	Username  string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// AuditFilter narrows List queries.
type AuditFilter struct {
	UserID   string
	Action   string
	Resource string
	Since    time.Time
	Limit    int
}

// AuditService persists the append-only trail of credential events: logins,
// key issuance and revocation, token rotations, and reuse signals.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an audit logger backed by the provided database.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// Log records a single event. Metadata is serialized to JSON; serialization
// failures drop the metadata rather than the event.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	if entry.Action == "" {
		return errors.New("audit service: action is required")
	}
	if entry.Result == "" {
		entry.Result = "success"
	}

	record := &models.AuditLog{
		UserID:    entry.UserID,
		Username:  entry.Username,
		Action:    entry.Action,
		Resource:  entry.Resource,
		Result:    entry.Result,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		CreatedAt: s.now(),
	}

	if len(entry.Metadata) > 0 {
		if raw, err := json.Marshal(entry.Metadata); err == nil {
			record.Metadata = string(raw)
		}
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("audit service: write entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first.
func (s *AuditService) List(ctx context.Context, filter AuditFilter) ([]models.AuditLog, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Resource != "" {
		query = query.Where("resource = ?", filter.Resource)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.AuditLog
	if err := query.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("audit service: list entries: %w", err)
	}
	return entries, nil
}

// Purge deletes entries older than the retention cutoff.
func (s *AuditService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: purge: %w", result.Error)
	}
	return result.RowsAffected, nil
}
