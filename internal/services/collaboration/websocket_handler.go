package collaboration

import (
	"context"
	"errors"
	"log"
	"net/http"

	"code-collab/internal/middleware"
	"code-collab/internal/models"
	"code-collab/internal/room"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the app origin once the frontend host is fixed
		return true
	},
}

// WebSocketHandler upgrades connections and binds them to rooms.
type WebSocketHandler struct {
	manager *room.Manager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(manager *room.Manager) *WebSocketHandler {
	return &WebSocketHandler{manager: manager}
}

// HandleRoomConnection joins the caller into a room and serves its event
// stream over one WebSocket connection. Join errors are reported as HTTP
// statuses before the upgrade so plain clients see them too.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := mux.Vars(r)["id"]

	userID := r.URL.Query().Get("user_id")
	userName := r.URL.Query().Get("user_name")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if userName == "" {
		userName = "Anonymous"
	}

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("room.id", roomID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	snapshot, err := h.manager.JoinRoom(ctx, roomID, userID, userName)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		switch {
		case errors.Is(err, models.ErrRoomNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, models.ErrRoomFull):
			http.Error(w, err.Error(), http.StatusConflict)
		case models.IsTransient(err):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		_ = h.manager.LeaveRoom(roomID, userID)
		return
	}

	session := newSession(roomID, userID, userName, conn, h.manager)

	sub, err := h.manager.Subscribe(roomID, session.ID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		conn.Close()
		_ = h.manager.LeaveRoom(roomID, userID)
		return
	}
	session.sub = sub

	// the joiner's first event is the full room snapshot with its color
	session.queue(models.ServerEvent{Type: models.EventSnapshot, Snapshot: snapshot})

	go session.writePump()
	go session.forwardPump()
	// the request context dies when this handler returns; the session keeps
	// the trace lineage but must outlive it
	go session.readPump(context.WithoutCancel(ctx))

	log.Printf("✓ WebSocket connection established for room %s (user: %s)", roomID, userName)
}
