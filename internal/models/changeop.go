package models

import (
	"encoding/json"
	"time"

	"code-collab/internal/ot"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// ChangeOp is one accepted edit in a room's change log. Immutable once
// sequenced: Seq is the server-assigned sequence number and equals the
// document version produced by applying Ops.
//
// Ops holds the rebased primitive set that was actually applied (a delete
// that survived a concurrent interior insert is two primitives), so replaying
// the log from zero reproduces the document exactly.
type ChangeOp struct {
	OpID          string    `json:"op_id"` // client-generated UUID, dedupe key for retries
	RoomID        string    `json:"room_id"`
	ParticipantID string    `json:"participant_id"`
	BaseVersion   int64     `json:"base_version"`
	Seq           int64     `json:"seq"`
	Ops           []ot.Op   `json:"ops"`
	Timestamp     time.Time `json:"timestamp"`
}

// ChangeDelta is the document-state delta broadcast to every subscriber
// after an accepted change: the applied op set plus the resulting version.
type ChangeDelta struct {
	RoomID        string  `json:"room_id"`
	ParticipantID string  `json:"participant_id"`
	OpID          string  `json:"op_id"`
	Ops           []ot.Op `json:"ops"`
	Version       int64   `json:"version"`
	// Cursor is where the edit landed, for feed/avatar display.
	Cursor CursorPosition `json:"cursor"`
}

// ChangeRecord is the durable form of a ChangeOp. The applied op set is
// stored as JSON; the (room, seq) and (room, op) pairs are unique so the
// database enforces both sequence integrity and retry dedupe.
type ChangeRecord struct {
	ID            string    `json:"id" gorm:"type:char(27);primaryKey"`
	RoomID        string    `json:"room_id" gorm:"type:char(27);not null;uniqueIndex:idx_room_seq;uniqueIndex:idx_room_op"`
	Seq           int64     `json:"seq" gorm:"not null;uniqueIndex:idx_room_seq"`
	OpID          string    `json:"op_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_room_op"`
	ParticipantID string    `json:"participant_id" gorm:"type:text;not null"`
	BaseVersion   int64     `json:"base_version" gorm:"not null"`
	Ops           []byte    `json:"-" gorm:"type:jsonb;not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate hook generates a KSUID before inserting
func (c *ChangeRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (ChangeRecord) TableName() string {
	return "change_ops"
}

// NewChangeRecord converts an accepted ChangeOp for persistence.
func NewChangeRecord(op ChangeOp) (*ChangeRecord, error) {
	payload, err := json.Marshal(op.Ops)
	if err != nil {
		return nil, err
	}
	return &ChangeRecord{
		RoomID:        op.RoomID,
		Seq:           op.Seq,
		OpID:          op.OpID,
		ParticipantID: op.ParticipantID,
		BaseVersion:   op.BaseVersion,
		Ops:           payload,
	}, nil
}

// ToChangeOp restores the in-memory form for replay.
func (c *ChangeRecord) ToChangeOp() (ChangeOp, error) {
	var ops []ot.Op
	if err := json.Unmarshal(c.Ops, &ops); err != nil {
		return ChangeOp{}, err
	}
	return ChangeOp{
		OpID:          c.OpID,
		RoomID:        c.RoomID,
		ParticipantID: c.ParticipantID,
		BaseVersion:   c.BaseVersion,
		Seq:           c.Seq,
		Ops:           ops,
		Timestamp:     c.CreatedAt,
	}, nil
}
