package models

import "time"

// Participant is the ephemeral, per-room presence state of one connected
// user. It is not part of the durable document: created on join, mutated on
// every cursor/typing event, removed on leave or presence timeout.
type Participant struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Color        string          `json:"color"`
	Cursor       *CursorPosition `json:"cursor,omitempty"`
	Typing       bool            `json:"typing"`
	JoinedAt     time.Time       `json:"joined_at"`
	LastActiveAt time.Time       `json:"last_active_at"`
}

// CursorPosition is a logical (line, column) coordinate in the document.
// Pixel mapping is the editor's concern, never the server's. Cursors are
// advisory and last-write-wins: a stale cursor is not re-mapped when the
// document changes underneath it.
type CursorPosition struct {
	Line      int             `json:"line"`
	Column    int             `json:"column"`
	Selection *SelectionRange `json:"selection,omitempty"`
}

// SelectionRange is an optional selected span anchored at the cursor.
type SelectionRange struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// PresenceUpdate is a partial participant mutation. Nil fields are left
// untouched so cursor and typing events can each carry only their own field.
type PresenceUpdate struct {
	Cursor *CursorPosition
	Typing *bool
}
