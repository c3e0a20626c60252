package repository

import (
	"context"
	"fmt"

	"code-collab/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChangeLogRepositoryImpl stores the durable change history. The in-memory
// log is a cache over this table: replaying ListSince(room, 0) onto an empty
// document reproduces the room exactly.
//
// Query patterns:
//   - Append: persist an accepted op (submitChange hot path)
//   - ListSince: incremental catch-up / rehydration replay
//   - DeleteBefore: retention pruning
type ChangeLogRepositoryImpl struct {
	db *gorm.DB
}

// NewChangeLogRepository creates a new change log repository
func NewChangeLogRepository(db *gorm.DB) *ChangeLogRepositoryImpl {
	return &ChangeLogRepositoryImpl{db: db}
}

// Append persists an accepted op. The (room_id, op_id) unique index makes a
// client retry of an already-recorded op a no-op instead of a duplicate row,
// and the (room_id, seq) unique index guarantees sequence integrity even if
// two server instances ever raced.
func (r *ChangeLogRepositoryImpl) Append(ctx context.Context, record *models.ChangeRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "op_id"}},
			DoNothing: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to append change: %w", err)
	}
	return nil
}

// ListSince returns the ops with sequence numbers greater than afterSeq, in
// sequence order.
func (r *ChangeLogRepositoryImpl) ListSince(ctx context.Context, roomID string, afterSeq int64) ([]*models.ChangeRecord, error) {
	var records []*models.ChangeRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND seq > ?", roomID, afterSeq).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	return records, nil
}

// DeleteBefore prunes ops with sequence numbers at or below the checkpoint.
// Called periodically once no participant could still reference them.
func (r *ChangeLogRepositoryImpl) DeleteBefore(ctx context.Context, roomID string, checkpointSeq int64) error {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND seq <= ?", roomID, checkpointSeq).
		Delete(&models.ChangeRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to prune changes: %w", result.Error)
	}
	return nil
}
