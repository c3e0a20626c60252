package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Room is one collaboration session scoped to a single shared document.
// The in-memory copy owned by the room manager is authoritative while the
// room is live; this record is its durable twin and must allow rebuilding
// the live state together with a change-history replay.
//
// KSUIDs are used for IDs: time-ordered, 27 chars, index-friendly.
type Room struct {
	ID         string         `json:"id" gorm:"type:char(27);primaryKey"`
	Language   string         `json:"language" gorm:"type:varchar(50);not null;default:'plaintext'"`
	CreatorID  string         `json:"creator_id" gorm:"type:text;not null"`
	Content    string         `json:"content" gorm:"type:text;not null"`
	Version    int64          `json:"version" gorm:"not null;default:0"`
	CreatedAt  time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	ArchivedAt gorm.DeletedAt `json:"archived_at,omitempty" gorm:"column:archived_at;index"` // soft delete on teardown
}

// BeforeCreate hook generates a KSUID before inserting
func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = ksuid.New().String()
	}
	return nil
}

// RoomSnapshot is the room state handed to a client on join and over the
// REST surface: current document, version and the live participant set.
type RoomSnapshot struct {
	RoomID       string         `json:"room_id"`
	Language     string         `json:"language"`
	Content      string         `json:"content"`
	Version      int64          `json:"version"`
	Participants []Participant  `json:"participants"`
	Activity     []RoomActivity `json:"activity,omitempty"`
	Color        string         `json:"color,omitempty"` // the joiner's assigned color, join responses only
}
