package presence

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"code-collab/internal/models"
)

func TestJoinAndSnapshotOrder(t *testing.T) {
	s := NewStore()

	s.Join("room-1", models.Participant{ID: "alice", Name: "Alice"})
	s.Join("room-1", models.Participant{ID: "bob", Name: "Bob"})
	s.Join("room-1", models.Participant{ID: "carol", Name: "Carol"})

	snap := s.Snapshot("room-1")
	assert.Equal(t, len(snap), 3)
	assert.Equal(t, snap[0].ID, "alice")
	assert.Equal(t, snap[1].ID, "bob")
	assert.Equal(t, snap[2].ID, "carol")
	assert.Equal(t, s.Count("room-1"), 3)
}

func TestRejoinReplacesInPlace(t *testing.T) {
	s := NewStore()
	s.Join("room-1", models.Participant{ID: "alice", Name: "Alice"})
	s.Join("room-1", models.Participant{ID: "bob", Name: "Bob"})

	// rejoin keeps alice's slot and does not grow the set
	s.Join("room-1", models.Participant{ID: "alice", Name: "Alice v2"})

	snap := s.Snapshot("room-1")
	assert.Equal(t, len(snap), 2)
	assert.Equal(t, snap[0].ID, "alice")
	assert.Equal(t, snap[0].Name, "Alice v2")
}

func TestUpsertMergesPartialUpdate(t *testing.T) {
	s := NewStore()
	s.Join("room-1", models.Participant{ID: "alice"})

	typing := true
	s.Upsert("room-1", "alice", models.PresenceUpdate{
		Cursor: &models.CursorPosition{Line: 3, Column: 7},
		Typing: &typing,
	})

	snap := s.Snapshot("room-1")
	assert.Equal(t, snap[0].Cursor.Line, 3)
	assert.Equal(t, snap[0].Cursor.Column, 7)
	assert.Equal(t, snap[0].Typing, true)

	// a cursor-only update must not clear the typing flag
	s.Upsert("room-1", "alice", models.PresenceUpdate{
		Cursor: &models.CursorPosition{Line: 4, Column: 0},
	})
	snap = s.Snapshot("room-1")
	assert.Equal(t, snap[0].Cursor.Line, 4)
	assert.Equal(t, snap[0].Typing, true)
}

func TestUpsertUnknownParticipantIsNoop(t *testing.T) {
	s := NewStore()
	s.Join("room-1", models.Participant{ID: "alice"})

	typing := true
	s.Upsert("room-1", "ghost", models.PresenceUpdate{Typing: &typing})
	s.Upsert("room-2", "alice", models.PresenceUpdate{Typing: &typing})

	assert.Equal(t, s.Count("room-1"), 1)
	assert.Equal(t, s.Count("room-2"), 0)
}

func TestRemoveReturnsEntry(t *testing.T) {
	s := NewStore()
	s.Join("room-1", models.Participant{ID: "alice", Name: "Alice", Color: "#e74c3c"})

	p, ok := s.Remove("room-1", "alice")
	assert.Equal(t, ok, true)
	assert.Equal(t, p.Name, "Alice")
	assert.Equal(t, p.Color, "#e74c3c")
	assert.Equal(t, s.Count("room-1"), 0)

	_, ok = s.Remove("room-1", "alice")
	assert.Equal(t, ok, false)
}

func TestExpireRemovesStaleParticipants(t *testing.T) {
	s := NewStore()
	s.Join("room-1", models.Participant{ID: "alice"})
	s.Join("room-1", models.Participant{ID: "bob"})

	// only bob stays active past the deadline
	time.Sleep(5 * time.Millisecond)
	deadline := time.Now()
	s.Touch("room-1", "bob")

	expired := s.Expire("room-1", deadline)
	assert.Equal(t, len(expired), 1)
	assert.Equal(t, expired[0].ID, "alice")

	snap := s.Snapshot("room-1")
	assert.Equal(t, len(snap), 1)
	assert.Equal(t, snap[0].ID, "bob")
}

func TestExpireEmptyRoomIsNoop(t *testing.T) {
	s := NewStore()
	expired := s.Expire("room-1", time.Now())
	assert.Equal(t, len(expired), 0)
}

func TestDropRoom(t *testing.T) {
	s := NewStore()
	s.Join("room-1", models.Participant{ID: "alice"})
	s.Join("room-2", models.Participant{ID: "bob"})

	s.DropRoom("room-1")
	assert.Equal(t, s.Count("room-1"), 0)
	assert.Equal(t, s.Count("room-2"), 1)
}
