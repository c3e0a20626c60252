package repository

import (
	"context"
	"errors"
	"fmt"

	"code-collab/internal/models"

	"gorm.io/gorm"
)

// RoomRepositoryImpl handles durable room storage using GORM. It doesn't
// know about any interface; the room package declares the one it needs.
type RoomRepositoryImpl struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *gorm.DB) *RoomRepositoryImpl {
	return &RoomRepositoryImpl{db: db}
}

// Create inserts a new room. The KSUID is generated in the BeforeCreate
// hook when the manager hasn't already assigned one.
func (r *RoomRepositoryImpl) Create(ctx context.Context, room *models.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// GetByID retrieves a room by its KSUID. Archived rooms are excluded by the
// soft-delete clause. A missing room returns (nil, nil) so the caller can
// distinguish absence from backend failure.
func (r *RoomRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

// Save writes the room's current document snapshot and version.
func (r *RoomRepositoryImpl) Save(ctx context.Context, room *models.Room) error {
	err := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ?", room.ID).
		Updates(map[string]interface{}{
			"content": room.Content,
			"version": room.Version,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save room snapshot: %w", err)
	}
	return nil
}

// Archive soft-deletes a room after teardown. History stays queryable for
// the retention window.
func (r *RoomRepositoryImpl) Archive(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&models.Room{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to archive room: %w", err)
	}
	return nil
}
