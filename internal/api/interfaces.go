package api

import (
	"context"

	"code-collab/internal/models"
)

// RoomService is what the REST handlers need from the room manager. Declared
// here, in the consumer, so the handlers can be tested against a stub.
type RoomService interface {
	CreateRoom(ctx context.Context, creatorID, creatorName, language string) (*models.RoomSnapshot, error)
	Snapshot(roomID string) (*models.RoomSnapshot, error)
	Activity(roomID string) ([]models.RoomActivity, error)
	ChangesSince(ctx context.Context, roomID string, version int64) ([]models.ChangeOp, error)
	LeaveRoom(roomID, participantID string) error
}

// ActivityReader serves archived feed entries for rooms that are no longer
// live. Optional: without it the activity endpoint only covers live rooms.
type ActivityReader interface {
	ListRecent(ctx context.Context, roomID string, limit int) ([]*models.ActivityRecord, error)
}
