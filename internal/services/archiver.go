package services

import (
	"context"
	"log"
	"sync"
	"time"

	"code-collab/internal/models"
)

// Archiver persists activity feed entries and room document snapshots with a
// fixed worker pool, keeping backend writes off the room mutation hot path.
// The authoritative change-op writes are NOT routed through here: those are
// synchronous inside submitChange so a change is either durably appended and
// broadcast, or not applied at all. Everything the archiver writes is
// reconstructible display/checkpoint data, so a dropped job on overload is
// logged, not fatal.
type Archiver struct {
	actRepo  ActivityRepository
	roomRepo RoomSnapshotRepository

	jobs    chan archiveJob
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

type archiveJob struct {
	activity *models.ActivityRecord
	room     *models.Room
}

// NewArchiver creates the pool without starting it.
func NewArchiver(actRepo ActivityRepository, roomRepo RoomSnapshotRepository, numWorkers, queueSize int) *Archiver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Archiver{
		actRepo:  actRepo,
		roomRepo: roomRepo,
		jobs:     make(chan archiveJob, queueSize),
		workers:  numWorkers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start spawns the workers.
func (a *Archiver) Start() {
	log.Printf("🔧 Starting archive worker pool with %d workers", a.workers)
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}
	log.Println("✓ Archive worker pool started")
}

func (a *Archiver) worker(id int) {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case job, ok := <-a.jobs:
			if !ok {
				return
			}
			a.process(job)
		}
	}
}

func (a *Archiver) process(job archiveJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if job.activity != nil && a.actRepo != nil {
		if err := a.actRepo.Store(ctx, job.activity); err != nil {
			log.Printf("⚠️  Failed to archive activity %s: %v", job.activity.ID, err)
		}
	}
	if job.room != nil && a.roomRepo != nil {
		if err := a.roomRepo.Save(ctx, job.room); err != nil {
			log.Printf("⚠️  Failed to archive room snapshot %s: %v", job.room.ID, err)
		}
	}
}

// ArchiveActivity queues a feed entry. Non-blocking: if the queue is full
// the entry is dropped with a warning rather than stalling the room.
func (a *Archiver) ArchiveActivity(roomID string, act models.RoomActivity) {
	a.submit(archiveJob{activity: models.NewActivityRecord(roomID, act)})
}

// ArchiveRoom queues a document snapshot checkpoint.
func (a *Archiver) ArchiveRoom(room models.Room) {
	a.submit(archiveJob{room: &room})
}

func (a *Archiver) submit(job archiveJob) {
	select {
	case <-a.ctx.Done():
		return
	default:
	}
	select {
	case a.jobs <- job:
	default:
		log.Printf("⚠️  Archive queue full, dropping job")
	}
}

// QueueLength returns the number of pending jobs.
func (a *Archiver) QueueLength() int {
	return len(a.jobs)
}

// Shutdown stops accepting jobs and waits for the workers to finish their
// current ones. The channel is never closed so a late submit cannot panic.
func (a *Archiver) Shutdown() {
	log.Println("🛑 Shutting down archiver...")
	a.cancel()
	a.wg.Wait()
	log.Println("✓ Archiver shutdown complete")
}
