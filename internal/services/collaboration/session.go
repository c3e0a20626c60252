package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"code-collab/internal/middleware"
	"code-collab/internal/models"
	"code-collab/internal/room"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Session is one WebSocket connection bound to a room: it decodes inbound
// client events into room manager calls and pumps the room's event stream
// back out. All room state lives in the manager; the session is pure
// transport.
type Session struct {
	ID       string
	RoomID   string
	UserID   string
	UserName string

	conn    *websocket.Conn
	send    chan []byte // buffered outbound queue
	manager *room.Manager
	sub     *room.Subscription
}

func newSession(roomID, userID, userName string, conn *websocket.Conn, manager *room.Manager) *Session {
	return &Session{
		ID:       ksuid.New().String(),
		RoomID:   roomID,
		UserID:   userID,
		UserName: userName,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		manager:  manager,
	}
}

// queue marshals a server event onto the outbound buffer. Non-blocking: a
// full buffer means the client is slow or dead, and the write pump's
// deadline will tear the connection down soon anyway.
func (s *Session) queue(ev models.ServerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("⚠️  Session %s: failed to marshal event: %v", s.ID, err)
		return
	}
	select {
	case s.send <- data:
	default:
		log.Printf("⚠️  Session %s buffer full, dropping event", s.ID)
	}
}

// forwardPump copies the room subscription stream onto the connection queue.
func (s *Session) forwardPump() {
	for ev := range s.sub.C {
		s.queue(ev)
	}
}

// readPump reads client events until the connection drops, then leaves the
// room. Each session has its own read goroutine.
func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.sub.Close()
		if err := s.manager.LeaveRoom(s.RoomID, s.UserID); err != nil &&
			!errors.Is(err, models.ErrRoomNotFound) && !errors.Is(err, models.ErrParticipantNotFound) {
			log.Printf("⚠️  Session %s: leave failed: %v", s.ID, err)
		}
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		s.handleMessage(ctx, message)
	}
}

// handleMessage decodes one inbound envelope and dispatches it.
func (s *Session) handleMessage(ctx context.Context, message []byte) {
	msgCtx, span := middleware.StartSpan(ctx, "WebSocket.ProcessMessage",
		attribute.String("session.id", s.ID),
		attribute.String("room.id", s.RoomID),
		attribute.Int("message.size", len(message)),
	)
	defer span.End()

	var ev models.ClientEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		s.queue(models.ServerEvent{Type: models.EventError, Code: "invalid-operation", Message: "malformed event envelope"})
		return
	}
	span.SetAttributes(attribute.String("event.type", ev.Type))

	switch ev.Type {
	case models.EventSubmitChange:
		if ev.Op == nil {
			s.queue(models.ServerEvent{Type: models.EventError, Code: "invalid-operation", Message: "submit-change without op", OpID: ev.OpID})
			return
		}
		delta, err := s.manager.SubmitChange(msgCtx, s.RoomID, s.UserID, ev.OpID, ev.BaseVersion, *ev.Op)
		if err != nil {
			middleware.AddSpanError(msgCtx, err)
			s.queueError(err, ev.OpID)
			return
		}
		// the submitter gets the delta via its own subscription too, but an
		// explicit ack carries the op id back even if the feed lags
		s.queue(models.ServerEvent{Type: models.EventChange, Delta: delta})

	case models.EventCursorMove:
		if ev.Cursor == nil {
			return
		}
		if err := s.manager.UpdateCursor(s.RoomID, s.UserID, *ev.Cursor); err != nil {
			middleware.AddSpanError(msgCtx, err)
		}

	case models.EventTyping:
		if ev.Typing == nil {
			return
		}
		if err := s.manager.SetTyping(s.RoomID, s.UserID, *ev.Typing); err != nil {
			middleware.AddSpanError(msgCtx, err)
		}

	case models.EventAISuggestion:
		if err := s.manager.RelaySuggestion(s.RoomID, s.UserID, ev.Payload); err != nil {
			middleware.AddSpanError(msgCtx, err)
		}

	case models.EventVoiceStart, models.EventVoiceEnd:
		if err := s.manager.RelayVoice(s.RoomID, s.UserID, ev.Type == models.EventVoiceStart); err != nil {
			middleware.AddSpanError(msgCtx, err)
		}

	default:
		s.queue(models.ServerEvent{Type: models.EventError, Code: "invalid-operation", Message: "unknown event type " + ev.Type})
	}
}

// queueError maps a core error onto the wire and sends it to this client
// only. Version skew carries the current version so the client can resync
// with a changes-since read.
func (s *Session) queueError(err error, opID string) {
	ev := models.ServerEvent{Type: models.EventError, Message: err.Error(), OpID: opID}
	switch {
	case errors.Is(err, models.ErrVersionSkew):
		ev.Code = "version-skew"
		if snap, snapErr := s.manager.Snapshot(s.RoomID); snapErr == nil {
			ev.Version = snap.Version
		}
	case errors.Is(err, models.ErrInvalidOperation):
		ev.Code = "invalid-operation"
	case errors.Is(err, models.ErrRoomNotFound), errors.Is(err, models.ErrParticipantNotFound):
		ev.Code = "not-found"
	case errors.Is(err, models.ErrRoomFull):
		ev.Code = "room-full"
	case errors.Is(err, models.ErrShuttingDown):
		ev.Code = "shutting-down"
	case models.IsTransient(err):
		ev.Code = "transient"
	default:
		ev.Code = "internal"
	}
	s.queue(ev)
}

// writePump writes queued messages and keepalive pings. A separate goroutine
// from the reader so a slow write can never block event handling.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// flush additional queued messages in the same wake-up
			n := len(s.send)
			for i := 0; i < n; i++ {
				if err := s.conn.WriteMessage(websocket.TextMessage, <-s.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
