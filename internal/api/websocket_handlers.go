package api

import (
	"net/http"
)

// WebSocket endpoints

// HandleRoomWebSocket serves a room's live collaboration stream.
func (h *Handler) HandleRoomWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleRoomConnection(w, r)
}
