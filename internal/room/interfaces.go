package room

import (
	"context"

	"code-collab/internal/models"
)

// Interfaces are declared here, in the consuming package, and only carry the
// methods the manager actually calls. Both dependencies are optional: with
// nil repositories the manager runs fully in-memory, which is how the tests
// exercise it.

// RoomRepository is what the manager needs from durable room storage. Save
// writes the document snapshot that gates change-log pruning.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id string) (*models.Room, error)
	Save(ctx context.Context, room *models.Room) error
	Archive(ctx context.Context, id string) error
}

// ChangeLogRepository is what the manager needs from durable change history.
// Append is on the submitChange hot path and must happen before any in-memory
// mutation; ListSince serves rehydration and deep catch-up reads.
type ChangeLogRepository interface {
	Append(ctx context.Context, record *models.ChangeRecord) error
	ListSince(ctx context.Context, roomID string, afterSeq int64) ([]*models.ChangeRecord, error)
	DeleteBefore(ctx context.Context, roomID string, checkpointSeq int64) error
}

// ActivitySink receives feed entries and room snapshots for asynchronous
// archival, off the mutation hot path.
type ActivitySink interface {
	ArchiveActivity(roomID string, act models.RoomActivity)
	ArchiveRoom(room models.Room)
}
