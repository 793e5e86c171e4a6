package repositories

import (
	"RatedApp/models"
	"context"
	"fmt"

	"gorm.io/gorm"
)

type EmailLogRepository struct {
	db *gorm.DB
}

func NewEmailLogRepository(db *gorm.DB) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

func (r *EmailLogRepository) Create(ctx context.Context, entry *models.EmailLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record email log: %w", err)
	}
	return nil
}

// GetRecent returns the newest log entries, capped at limit.
func (r *EmailLogRepository) GetRecent(ctx context.Context, limit int) ([]models.EmailLog, error) {
	var entries []models.EmailLog
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get email logs: %w", err)
	}
	return entries, nil
}
