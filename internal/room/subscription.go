package room

import (
	"log"

	"code-collab/internal/models"
)

const subscriptionBuffer = 256

// Subscription is one consumer of a room's event stream. Each connected
// client gets its own subscription; the registry is owned by the room state,
// never by package-level globals, and is injected into whatever transport
// serves the connection.
type Subscription struct {
	ID string
	C  <-chan models.ServerEvent

	ch     chan models.ServerEvent
	cancel func()
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// broadcast fans an event out to every subscriber of a room. Sends are
// non-blocking: a subscriber that cannot keep up loses feed events rather
// than stalling the room; the transport's own backpressure handling decides
// when to drop the connection. Callers hold the room lock.
func (rs *roomState) broadcast(ev models.ServerEvent) {
	for id, ch := range rs.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("⚠️  Subscriber %s on room %s is lagging, dropping event", id, rs.room.ID)
		}
	}
}

// activityFeed is the bounded ring of recent feed entries, for display only.
type activityFeed struct {
	buf []models.RoomActivity
	cap int
}

func newActivityFeed(capacity int) *activityFeed {
	return &activityFeed{cap: capacity}
}

func (f *activityFeed) push(act models.RoomActivity) {
	f.buf = append(f.buf, act)
	if len(f.buf) > f.cap {
		f.buf = append([]models.RoomActivity(nil), f.buf[len(f.buf)-f.cap:]...)
	}
}

func (f *activityFeed) list() []models.RoomActivity {
	out := make([]models.RoomActivity, len(f.buf))
	copy(out, f.buf)
	return out
}
