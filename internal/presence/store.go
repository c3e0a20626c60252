package presence

import (
	"sync"
	"time"

	"code-collab/internal/models"
)

// Store holds the ephemeral per-room participant state: cursor, typing flag,
// last-active timestamp. State is only ever mutated through Join/Upsert/
// Remove/Expire; callers never read-modify-write entries directly.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*roomPresence
}

type roomPresence struct {
	order   []string // join order, for stable snapshot rendering
	entries map[string]*models.Participant
}

// NewStore creates an empty presence store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*roomPresence)}
}

// Join registers a participant. Rejoining with the same ID replaces the
// existing entry in place and keeps its original join-order slot, so the
// participant set stays uniquely keyed by user ID.
func (s *Store) Join(roomID string, p models.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rp := s.rooms[roomID]
	if rp == nil {
		rp = &roomPresence{entries: make(map[string]*models.Participant)}
		s.rooms[roomID] = rp
	}

	now := time.Now()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	p.LastActiveAt = now

	if _, rejoining := rp.entries[p.ID]; !rejoining {
		rp.order = append(rp.order, p.ID)
	}
	rp.entries[p.ID] = &p
}

// Upsert merges a partial state update into an existing entry and refreshes
// its last-active timestamp. Unknown participants are ignored: presence is
// advisory and an update racing a leave is not an error.
func (s *Store) Upsert(roomID, participantID string, update models.PresenceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rp := s.rooms[roomID]
	if rp == nil {
		return
	}
	p, ok := rp.entries[participantID]
	if !ok {
		return
	}

	if update.Cursor != nil {
		p.Cursor = update.Cursor
	}
	if update.Typing != nil {
		p.Typing = *update.Typing
	}
	p.LastActiveAt = time.Now()
}

// Touch refreshes a participant's last-active timestamp without changing any
// other state (pongs, relayed markers).
func (s *Store) Touch(roomID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rp := s.rooms[roomID]; rp != nil {
		if p, ok := rp.entries[participantID]; ok {
			p.LastActiveAt = time.Now()
		}
	}
}

// Remove deletes a participant. Returns the removed entry so the caller can
// release its color and announce the leave.
func (s *Store) Remove(roomID, participantID string) (models.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(roomID, participantID)
}

func (s *Store) remove(roomID, participantID string) (models.Participant, bool) {
	rp := s.rooms[roomID]
	if rp == nil {
		return models.Participant{}, false
	}
	p, ok := rp.entries[participantID]
	if !ok {
		return models.Participant{}, false
	}

	delete(rp.entries, participantID)
	for i, id := range rp.order {
		if id == participantID {
			rp.order = append(rp.order[:i], rp.order[i+1:]...)
			break
		}
	}
	if len(rp.entries) == 0 {
		delete(s.rooms, roomID)
	}
	return *p, true
}

// Expire removes every participant in the room whose last activity is older
// than the deadline. Called by the manager's periodic sweep, not on every
// event. Returns the expired entries.
func (s *Store) Expire(roomID string, deadline time.Time) []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	rp := s.rooms[roomID]
	if rp == nil {
		return nil
	}

	var stale []string
	for id, p := range rp.entries {
		if p.LastActiveAt.Before(deadline) {
			stale = append(stale, id)
		}
	}

	var expired []models.Participant
	for _, id := range stale {
		if p, ok := s.remove(roomID, id); ok {
			expired = append(expired, p)
		}
	}
	return expired
}

// Snapshot returns the room's participants in join order.
func (s *Store) Snapshot(roomID string) []models.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rp := s.rooms[roomID]
	if rp == nil {
		return nil
	}

	out := make([]models.Participant, 0, len(rp.order))
	for _, id := range rp.order {
		if p, ok := rp.entries[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Count returns the number of participants in the room.
func (s *Store) Count(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rp := s.rooms[roomID]; rp != nil {
		return len(rp.entries)
	}
	return 0
}

// DropRoom discards all presence state for a torn-down room.
func (s *Store) DropRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}
