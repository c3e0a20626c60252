package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"code-collab/internal/models"
)

type recordingActivityRepo struct {
	mu     sync.Mutex
	stored []*models.ActivityRecord
}

func (r *recordingActivityRepo) Store(ctx context.Context, record *models.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, record)
	return nil
}

func (r *recordingActivityRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stored)
}

type recordingRoomRepo struct {
	mu    sync.Mutex
	saved []*models.Room
}

func (r *recordingRoomRepo) Save(ctx context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, room)
	return nil
}

func (r *recordingRoomRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestArchiverProcessesJobs(t *testing.T) {
	actRepo := &recordingActivityRepo{}
	roomRepo := &recordingRoomRepo{}

	a := NewArchiver(actRepo, roomRepo, 2, 16)
	a.Start()
	defer a.Shutdown()

	a.ArchiveActivity("room-1", models.NewActivity(models.ActivityJoin, "alice", "Alice"))
	a.ArchiveRoom(models.Room{ID: "room-1", Content: "hello", Version: 1})

	waitFor(t, func() bool { return actRepo.count() == 1 && roomRepo.count() == 1 })

	assert.Equal(t, actRepo.stored[0].RoomID, "room-1")
	assert.Equal(t, actRepo.stored[0].Type, "join")
	assert.Equal(t, roomRepo.saved[0].Content, "hello")
}

func TestArchiverDropsWhenQueueFull(t *testing.T) {
	// no workers running, queue of one: the second job is dropped, not blocked
	a := NewArchiver(&recordingActivityRepo{}, &recordingRoomRepo{}, 1, 1)

	a.ArchiveRoom(models.Room{ID: "room-1"})
	a.ArchiveRoom(models.Room{ID: "room-2"})

	assert.Equal(t, a.QueueLength(), 1)
}

func TestArchiverShutdownStopsAcceptingJobs(t *testing.T) {
	roomRepo := &recordingRoomRepo{}
	a := NewArchiver(&recordingActivityRepo{}, roomRepo, 1, 16)
	a.Start()
	a.Shutdown()

	// a late submit after shutdown is a silent no-op, never a panic
	a.ArchiveRoom(models.Room{ID: "room-1"})
	assert.Equal(t, a.QueueLength(), 0)
}
