package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"code-collab/internal/models"
	"code-collab/internal/ot"
	"code-collab/internal/room"

	"github.com/google/uuid"
)

func newTestServer(t *testing.T) (*httptest.Server, *room.Manager) {
	t.Helper()
	manager := room.NewManager(room.Config{}, nil, nil, nil)
	handler := NewHandler(manager, nil, nil)
	srv := httptest.NewServer(SetupRoutes(handler))
	t.Cleanup(srv.Close)
	return srv, manager
}

func createRoomViaAPI(t *testing.T, srv *httptest.Server) models.RoomSnapshot {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/rooms", "application/json",
		strings.NewReader(`{"creator_id":"alice","creator_name":"Alice","language":"go"}`))
	if err != nil {
		t.Fatalf("create room request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create room status: %d", resp.StatusCode)
	}

	var snap models.RoomSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestCreateRoomEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	snap := createRoomViaAPI(t, srv)

	assert.NotEqual(t, snap.RoomID, "")
	assert.Equal(t, snap.Language, "go")
	assert.Equal(t, snap.Version, int64(0))
	assert.Equal(t, len(snap.Participants), 1)
	assert.NotEqual(t, snap.Color, "")
}

func TestCreateRoomRequiresCreatorID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/rooms", "application/json",
		strings.NewReader(`{"creator_name":"Alice"}`))
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestGetRoomEndpoint(t *testing.T) {
	srv, manager := newTestServer(t)
	snap := createRoomViaAPI(t, srv)

	_, err := manager.SubmitChange(context.Background(), snap.RoomID, "alice", uuid.NewString(), 0,
		ot.Op{Type: ot.OpInsert, Pos: 0, Text: "package main"})
	assert.Equal(t, err, nil)

	resp, err := http.Get(srv.URL + "/api/rooms/" + snap.RoomID)
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var got models.RoomSnapshot
	assert.Equal(t, json.NewDecoder(resp.Body).Decode(&got), nil)
	assert.Equal(t, got.Content, "package main")
	assert.Equal(t, got.Version, int64(1))
}

func TestGetRoomNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/rooms/missing")
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestGetChangesEndpoint(t *testing.T) {
	srv, manager := newTestServer(t)
	snap := createRoomViaAPI(t, srv)

	_, err := manager.SubmitChange(context.Background(), snap.RoomID, "alice", uuid.NewString(), 0,
		ot.Op{Type: ot.OpInsert, Pos: 0, Text: "x"})
	assert.Equal(t, err, nil)

	resp, err := http.Get(srv.URL + "/api/rooms/" + snap.RoomID + "/changes?since=0")
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var changes []models.ChangeOp
	assert.Equal(t, json.NewDecoder(resp.Body).Decode(&changes), nil)
	assert.Equal(t, len(changes), 1)
	assert.Equal(t, changes[0].Seq, int64(1))
}

func TestGetChangesRejectsBadSince(t *testing.T) {
	srv, _ := newTestServer(t)
	snap := createRoomViaAPI(t, srv)

	for _, q := range []string{"?since=abc", "?since=-1"} {
		resp, err := http.Get(srv.URL + "/api/rooms/" + snap.RoomID + "/changes" + q)
		assert.Equal(t, err, nil)
		resp.Body.Close()
		assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	}
}

func TestGetChangesAheadOfHeadConflicts(t *testing.T) {
	srv, _ := newTestServer(t)
	snap := createRoomViaAPI(t, srv)

	resp, err := http.Get(srv.URL + "/api/rooms/" + snap.RoomID + "/changes?since=99")
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusConflict)
}

func TestLeaveRoomEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	snap := createRoomViaAPI(t, srv)

	req, _ := http.NewRequest(http.MethodDelete,
		srv.URL+"/api/rooms/"+snap.RoomID+"/participants/alice", nil)
	resp, err := http.DefaultClient.Do(req)
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusNoContent)

	// leaving twice is a 404, the participant is already gone
	resp2, err := http.DefaultClient.Do(req)
	assert.Equal(t, err, nil)
	defer resp2.Body.Close()
	assert.Equal(t, resp2.StatusCode, http.StatusNotFound)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
}
