package repository

import (
	"context"
	"fmt"

	"code-collab/internal/models"

	"gorm.io/gorm"
)

// ActivityRepositoryImpl archives room activity feed entries. Written by the
// archive worker pool, read by nothing on the hot path; the live feed is the
// in-memory ring.
type ActivityRepositoryImpl struct {
	db *gorm.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *gorm.DB) *ActivityRepositoryImpl {
	return &ActivityRepositoryImpl{db: db}
}

// Store persists one feed entry.
func (r *ActivityRepositoryImpl) Store(ctx context.Context, record *models.ActivityRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to store activity: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries for a room, oldest first.
func (r *ActivityRepositoryImpl) ListRecent(ctx context.Context, roomID string, limit int) ([]*models.ActivityRecord, error) {
	var records []*models.ActivityRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC"). // KSUID is time-ordered
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
