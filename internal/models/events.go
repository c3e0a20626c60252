package models

import (
	"encoding/json"

	"code-collab/internal/ot"
)

// Wire envelopes for the WebSocket transport. One JSON envelope per message,
// discriminated by Type, with only the fields for that type populated.

// Inbound event types (client -> server).
const (
	EventSubmitChange = "submit-change"
	EventCursorMove   = "cursor-move"
	EventTyping       = "typing"
	EventAISuggestion = "ai-suggestion"
	EventVoiceStart   = "voice-start"
	EventVoiceEnd     = "voice-end"
)

// Outbound event types (server -> subscribers).
const (
	EventSnapshot = "snapshot"
	EventActivity = "activity"
	EventChange   = "change"
	EventError    = "error"
)

// ClientEvent is an inbound message from a connected editor.
type ClientEvent struct {
	Type string `json:"type"`

	// submit-change
	OpID        string `json:"op_id,omitempty"`
	BaseVersion int64  `json:"base_version,omitempty"`
	Op          *ot.Op `json:"op,omitempty"`

	// cursor-move
	Cursor *CursorPosition `json:"cursor,omitempty"`

	// typing
	Typing *bool `json:"typing,omitempty"`

	// ai-suggestion: opaque generator payload, relayed untouched
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is an outbound message to a room subscriber.
type ServerEvent struct {
	Type     string        `json:"type"`
	Snapshot *RoomSnapshot `json:"snapshot,omitempty"`
	Activity *RoomActivity `json:"activity,omitempty"`
	Delta    *ChangeDelta  `json:"delta,omitempty"`

	// error responses, sent to the offending client only
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	OpID    string `json:"op_id,omitempty"`
	Version int64  `json:"version,omitempty"` // current version on version-skew, resync hint
}
