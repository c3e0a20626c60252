package services

import (
	"context"

	"code-collab/internal/models"
)

// Interfaces live in the consuming package and declare only the methods this
// package calls; the repository implementations never see them.

// ActivityRepository is what the archiver needs from activity storage.
type ActivityRepository interface {
	Store(ctx context.Context, record *models.ActivityRecord) error
}

// RoomSnapshotRepository is what the archiver needs from room storage.
type RoomSnapshotRepository interface {
	Save(ctx context.Context, room *models.Room) error
}
