package changelog

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"code-collab/internal/models"
	"code-collab/internal/ot"
)

func insertOp(opID, participantID string, pos int, text string) models.ChangeOp {
	return models.ChangeOp{
		OpID:          opID,
		ParticipantID: participantID,
		Ops:           []ot.Op{{Type: ot.OpInsert, Pos: pos, Text: text}},
	}
}

func TestAppendAssignsSequentialVersions(t *testing.T) {
	l := New("room-1", 0)
	assert.Equal(t, l.Head(), int64(0))

	for i := 1; i <= 3; i++ {
		seq, dup := l.Append(insertOp(fmt.Sprintf("op-%d", i), "alice", 0, "x"))
		assert.Equal(t, dup, false)
		assert.Equal(t, seq, int64(i))
	}
	assert.Equal(t, l.Head(), int64(3))
	assert.Equal(t, l.Len(), 3)
}

func TestAppendStartsAfterSnapshotVersion(t *testing.T) {
	l := New("room-1", 42)
	seq, dup := l.Append(insertOp("op-1", "alice", 0, "x"))
	assert.Equal(t, dup, false)
	assert.Equal(t, seq, int64(43))
	assert.Equal(t, l.Head(), int64(43))
}

func TestAppendDedupesByOpID(t *testing.T) {
	l := New("room-1", 0)
	first, _ := l.Append(insertOp("op-1", "alice", 0, "x"))

	// a client retry with the same op ID gets the original seq back
	again, dup := l.Append(insertOp("op-1", "alice", 0, "x"))
	assert.Equal(t, dup, true)
	assert.Equal(t, again, first)
	assert.Equal(t, l.Head(), first)

	seq, ok := l.Seen("op-1")
	assert.Equal(t, ok, true)
	assert.Equal(t, seq, first)

	_, ok = l.Seen("op-never")
	assert.Equal(t, ok, false)
}

func TestSinceReturnsWindow(t *testing.T) {
	l := New("room-1", 0)
	for i := 1; i <= 5; i++ {
		l.Append(insertOp(fmt.Sprintf("op-%d", i), "alice", 0, "x"))
	}

	ops, err := l.Since(2)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(ops), 3)
	assert.Equal(t, ops[0].Seq, int64(3))
	assert.Equal(t, ops[2].Seq, int64(5))

	// since(head) is an empty, valid read
	ops, err = l.Since(5)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(ops), 0)
}

// Replaying every retained op from version 0 must rebuild the same document
// the appends produced.
func TestReplayFromZeroRebuildsDocument(t *testing.T) {
	l := New("room-1", 0)
	doc := ""
	words := []string{"hello", " ", "world"}
	for i, w := range words {
		op := insertOp(fmt.Sprintf("op-%d", i), "alice", len([]rune(doc)), w)
		l.Append(op)
		next, err := ot.ApplySet(doc, op.Ops)
		assert.Equal(t, err, nil)
		doc = next
	}

	ops, err := l.Since(0)
	assert.Equal(t, err, nil)

	replayed := ""
	for _, op := range ops {
		replayed, err = ot.ApplySet(replayed, op.Ops)
		assert.Equal(t, err, nil)
	}
	assert.Equal(t, replayed, doc)
	assert.Equal(t, replayed, "hello world")
	assert.Equal(t, l.Head(), int64(len(words)))
}

func TestSinceAheadOfHeadIsSkew(t *testing.T) {
	l := New("room-1", 0)
	l.Append(insertOp("op-1", "alice", 0, "x"))

	_, err := l.Since(7)
	assert.Equal(t, errors.Is(err, ot.ErrVersionSkew), true)
}

func TestSinceBeforePrunedHorizonIsSkew(t *testing.T) {
	l := New("room-1", 0)
	for i := 1; i <= 10; i++ {
		op := insertOp(fmt.Sprintf("op-%d", i), "alice", 0, "x")
		op.Timestamp = time.Now().Add(-time.Hour)
		l.Append(op)
	}

	dropped := l.Prune(4, time.Minute)
	assert.Equal(t, dropped, 6)
	assert.Equal(t, l.Len(), 4)
	assert.Equal(t, l.Head(), int64(10))

	// the newest four entries are still readable
	ops, err := l.Since(6)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(ops), 4)

	// anything older reports skew instead of a partial window
	_, err = l.Since(3)
	assert.Equal(t, errors.Is(err, ot.ErrVersionSkew), true)

	// pruned op IDs are forgotten, so a very late retry re-appends
	_, ok := l.Seen("op-1")
	assert.Equal(t, ok, false)
	_, ok = l.Seen("op-10")
	assert.Equal(t, ok, true)
}

func TestPruneKeepsYoungEntries(t *testing.T) {
	l := New("room-1", 0)
	for i := 1; i <= 10; i++ {
		l.Append(insertOp(fmt.Sprintf("op-%d", i), "alice", 0, "x"))
	}

	// everything is fresher than the age floor, so nothing is dropped
	dropped := l.Prune(4, time.Hour)
	assert.Equal(t, dropped, 0)
	assert.Equal(t, l.Len(), 10)
}

func TestPendingMirrorsSince(t *testing.T) {
	l := New("room-1", 0)
	l.Append(insertOp("op-1", "alice", 0, "a"))
	l.Append(insertOp("op-2", "bob", 1, "b"))

	pending, err := l.Pending(0)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(pending), 2)
	assert.Equal(t, pending[0].Seq, int64(1))
	assert.Equal(t, pending[0].ParticipantID, "alice")
	assert.Equal(t, pending[1].Seq, int64(2))
	assert.Equal(t, pending[1].ParticipantID, "bob")
}
