package models

import (
	"encoding/json"
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// ActivityType discriminates the entries of a room's activity feed.
type ActivityType string

const (
	ActivityJoin          ActivityType = "join"
	ActivityLeave         ActivityType = "leave"
	ActivityCodeChange    ActivityType = "code-change"
	ActivityAISuggestion  ActivityType = "ai-suggestion"
	ActivityTyping        ActivityType = "typing"
	ActivityStoppedTyping ActivityType = "stopped-typing"
	ActivityCursorMove    ActivityType = "cursor-move"
	ActivityVoiceStart    ActivityType = "voice-start"
	ActivityVoiceEnd      ActivityType = "voice-end"
)

// RoomActivity is one feed entry: a tagged variant where only the fields
// relevant to its type are set. The feed is a bounded ring for display and
// is never authoritative for document state.
type RoomActivity struct {
	ID              string       `json:"id"`
	Type            ActivityType `json:"type"`
	ParticipantID   string       `json:"participant_id"`
	ParticipantName string       `json:"participant_name"`
	Timestamp       time.Time    `json:"timestamp"`

	// Variant payloads
	Cursor     *CursorPosition `json:"cursor,omitempty"`     // cursor-move
	Change     *ChangeSummary  `json:"change,omitempty"`     // code-change
	Suggestion json.RawMessage `json:"suggestion,omitempty"` // ai-suggestion, relayed opaquely
}

// ChangeSummary is the code-change variant payload: enough for a feed line,
// not a substitute for the ChangeDelta broadcast.
type ChangeSummary struct {
	OpID    string         `json:"op_id"`
	Version int64          `json:"version"`
	Cursor  CursorPosition `json:"cursor"`
}

// NewActivity builds a feed entry with a fresh time-ordered ID.
func NewActivity(t ActivityType, participantID, participantName string) RoomActivity {
	return RoomActivity{
		ID:              ksuid.New().String(),
		Type:            t,
		ParticipantID:   participantID,
		ParticipantName: participantName,
		Timestamp:       time.Now(),
	}
}

// ActivityRecord is the archived form of a feed entry, written asynchronously
// by the archive worker pool. The variant payload is stored as JSON.
type ActivityRecord struct {
	ID              string    `json:"id" gorm:"type:char(27);primaryKey"`
	RoomID          string    `json:"room_id" gorm:"type:char(27);not null;index:idx_activity_room"`
	Type            string    `json:"type" gorm:"type:varchar(20);not null"`
	ParticipantID   string    `json:"participant_id" gorm:"type:text;not null"`
	ParticipantName string    `json:"participant_name" gorm:"type:text;not null"`
	Payload         []byte    `json:"-" gorm:"type:jsonb"`
	CreatedAt       time.Time `json:"created_at" gorm:"index:idx_activity_room;autoCreateTime"`
}

// BeforeCreate hook generates a KSUID before inserting
func (a *ActivityRecord) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (ActivityRecord) TableName() string {
	return "room_activities"
}

// NewActivityRecord converts a feed entry for archival.
func NewActivityRecord(roomID string, act RoomActivity) *ActivityRecord {
	payload, _ := json.Marshal(struct {
		Cursor     *CursorPosition `json:"cursor,omitempty"`
		Change     *ChangeSummary  `json:"change,omitempty"`
		Suggestion json.RawMessage `json:"suggestion,omitempty"`
	}{act.Cursor, act.Change, act.Suggestion})

	return &ActivityRecord{
		ID:              act.ID,
		RoomID:          roomID,
		Type:            string(act.Type),
		ParticipantID:   act.ParticipantID,
		ParticipantName: act.ParticipantName,
		Payload:         payload,
		CreatedAt:       act.Timestamp,
	}
}

// ToRoomActivity restores the feed form of an archived entry.
func (a *ActivityRecord) ToRoomActivity() (RoomActivity, error) {
	var payload struct {
		Cursor     *CursorPosition `json:"cursor,omitempty"`
		Change     *ChangeSummary  `json:"change,omitempty"`
		Suggestion json.RawMessage `json:"suggestion,omitempty"`
	}
	if len(a.Payload) > 0 {
		if err := json.Unmarshal(a.Payload, &payload); err != nil {
			return RoomActivity{}, err
		}
	}
	return RoomActivity{
		ID:              a.ID,
		Type:            ActivityType(a.Type),
		ParticipantID:   a.ParticipantID,
		ParticipantName: a.ParticipantName,
		Timestamp:       a.CreatedAt,
		Cursor:          payload.Cursor,
		Change:          payload.Change,
		Suggestion:      payload.Suggestion,
	}, nil
}
