package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"code-collab/internal/models"
	"code-collab/internal/services/collaboration"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests
type Handler struct {
	rooms     RoomService
	archive   ActivityReader // optional
	wsHandler *collaboration.WebSocketHandler
}

func NewHandler(rooms RoomService, archive ActivityReader, wsHandler *collaboration.WebSocketHandler) *Handler {
	return &Handler{
		rooms:     rooms,
		archive:   archive,
		wsHandler: wsHandler,
	}
}

// RoomCreate is the create-room request body.
type RoomCreate struct {
	CreatorID   string `json:"creator_id"`
	CreatorName string `json:"creator_name"`
	Language    string `json:"language"`
}

// CreateRoom allocates a room with an empty document and registers the
// creator as its first participant.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req RoomCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.CreatorID == "" {
		http.Error(w, "creator_id is required", http.StatusBadRequest)
		return
	}
	if req.CreatorName == "" {
		req.CreatorName = "Anonymous"
	}

	snapshot, err := h.rooms.CreateRoom(r.Context(), req.CreatorID, req.CreatorName, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, snapshot)
}

// GetRoom returns the room's current snapshot: document, version and
// participants.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.rooms.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// archivedActivityLimit bounds the fallback read from the durable archive,
// mirroring the live feed's default ring size.
const archivedActivityLimit = 50

// GetActivity returns the recent activity feed entries. For a room that is no
// longer live it falls back to the durable archive.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	activity, err := h.rooms.Activity(roomID)
	if err != nil {
		if errors.Is(err, models.ErrRoomNotFound) && h.archive != nil {
			h.archivedActivity(w, r, roomID)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *Handler) archivedActivity(w http.ResponseWriter, r *http.Request, roomID string) {
	records, err := h.archive.ListRecent(r.Context(), roomID, archivedActivityLimit)
	if err != nil {
		writeError(w, models.Transient(err))
		return
	}
	if len(records) == 0 {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	activity := make([]models.RoomActivity, 0, len(records))
	for _, rec := range records {
		act, convErr := rec.ToRoomActivity()
		if convErr != nil {
			writeError(w, convErr)
			return
		}
		activity = append(activity, act)
	}
	writeJSON(w, http.StatusOK, activity)
}

// GetChanges replays accepted ops after ?since=N for client catch-up after a
// reconnect or a version-skew rejection.
func (h *Handler) GetChanges(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	changes, err := h.rooms.ChangesSince(r.Context(), mux.Vars(r)["id"], since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

// LeaveRoom removes a participant over REST, for clients whose socket
// already dropped.
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.rooms.LeaveRoom(vars["id"], vars["participant_id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the core error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrRoomNotFound), errors.Is(err, models.ErrParticipantNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrRoomFull):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrVersionSkew):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrInvalidOperation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrShuttingDown), models.IsTransient(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
