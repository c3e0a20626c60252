package ot

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func mustMerge(t *testing.T, doc string, version int64, history []PendingOp, actor string, base int64, op Op) *MergeResult {
	t.Helper()
	res, err := Merge(doc, version, history, actor, base, op)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	return res
}

func TestApplyPrimitives(t *testing.T) {
	doc, err := Apply("", Op{Type: OpInsert, Pos: 0, Text: "hello"})
	assert.Equal(t, err, nil)
	assert.Equal(t, doc, "hello")

	doc, err = Apply(doc, Op{Type: OpInsert, Pos: 5, Text: " world"})
	assert.Equal(t, err, nil)
	assert.Equal(t, doc, "hello world")

	doc, err = Apply(doc, Op{Type: OpDelete, Pos: 0, Len: 6})
	assert.Equal(t, err, nil)
	assert.Equal(t, doc, "world")

	doc, err = Apply(doc, Op{Type: OpReplace, Pos: 0, Len: 5, Text: "gopher"})
	assert.Equal(t, err, nil)
	assert.Equal(t, doc, "gopher")
}

func TestApplyMultiByte(t *testing.T) {
	doc, err := Apply("héllo", Op{Type: OpDelete, Pos: 1, Len: 1})
	assert.Equal(t, err, nil)
	assert.Equal(t, doc, "hllo")

	doc, err = Apply("日本語", Op{Type: OpInsert, Pos: 3, Text: "!"})
	assert.Equal(t, err, nil)
	assert.Equal(t, doc, "日本語!")
}

func TestApplyRejectsOutOfBounds(t *testing.T) {
	_, err := Apply("ab", Op{Type: OpInsert, Pos: 3, Text: "x"})
	assert.Equal(t, errors.Is(err, ErrInvalidOperation), true)

	_, err = Apply("ab", Op{Type: OpDelete, Pos: 1, Len: 5})
	assert.Equal(t, errors.Is(err, ErrInvalidOperation), true)
}

func TestValidateRejectsMalformedOps(t *testing.T) {
	for _, op := range []Op{
		{Type: OpInsert, Pos: -1, Text: "x"},
		{Type: OpInsert, Pos: 0},
		{Type: OpDelete, Pos: 0, Len: 0},
		{Type: OpDelete, Pos: 0, Len: 2, Text: "x"},
		{Type: "rename", Pos: 0},
	} {
		assert.Equal(t, errors.Is(op.Validate(), ErrInvalidOperation), true)
	}
}

// A concurrent insert/insert pair at the same position must converge to the
// same document for both delivery orders, with the tie broken by
// participant ID.
func TestInsertInsertConvergence(t *testing.T) {
	const doc = "hello"
	opA := Op{Type: OpInsert, Pos: 5, Text: "A"}
	opB := Op{Type: OpInsert, Pos: 5, Text: "B"}

	// order 1: alice lands first
	first := mustMerge(t, doc, 0, nil, "alice", 0, opA)
	second := mustMerge(t, first.Doc, 1, []PendingOp{{Seq: 1, ParticipantID: "alice", Ops: first.Ops}}, "bob", 0, opB)

	// order 2: bob lands first
	firstR := mustMerge(t, doc, 0, nil, "bob", 0, opB)
	secondR := mustMerge(t, firstR.Doc, 1, []PendingOp{{Seq: 1, ParticipantID: "bob", Ops: firstR.Ops}}, "alice", 0, opA)

	assert.Equal(t, second.Doc, secondR.Doc)
	assert.Equal(t, second.Doc, "helloAB") // alice < bob keeps the left slot
}

// Given "ab": one participant inserts "X" at 1, the other concurrently
// deletes [0,2). The insert must survive the deletion in both delivery
// orders.
func TestInsertSurvivesConcurrentDelete(t *testing.T) {
	const doc = "ab"
	ins := Op{Type: OpInsert, Pos: 1, Text: "X"}
	del := Op{Type: OpDelete, Pos: 0, Len: 2}

	// insert first, then the delete splits around it
	r1 := mustMerge(t, doc, 0, nil, "alice", 0, ins)
	r2 := mustMerge(t, r1.Doc, 1, []PendingOp{{Seq: 1, ParticipantID: "alice", Ops: r1.Ops}}, "bob", 0, del)
	assert.Equal(t, r2.Doc, "X")
	assert.Equal(t, r2.Version, int64(2))

	// delete first, then the insert attaches at the deletion boundary
	s1 := mustMerge(t, doc, 0, nil, "bob", 0, del)
	s2 := mustMerge(t, s1.Doc, 1, []PendingOp{{Seq: 1, ParticipantID: "bob", Ops: s1.Ops}}, "alice", 0, ins)
	assert.Equal(t, s2.Doc, "X")
	assert.Equal(t, s2.Version, int64(2))
}

// From "hello world" at v2: delete [0,5) and insert "!" at 11 submitted
// concurrently. The insert rebases to position 6 and the final document is
// " world!" at v4.
func TestConcurrentDeleteAndTrailingInsert(t *testing.T) {
	const doc = "hello world"

	del := mustMerge(t, doc, 2, nil, "alice", 2, Op{Type: OpDelete, Pos: 0, Len: 5})
	assert.Equal(t, del.Doc, " world")
	assert.Equal(t, del.Version, int64(3))

	ins := mustMerge(t, del.Doc, 3, []PendingOp{{Seq: 3, ParticipantID: "alice", Ops: del.Ops}},
		"bob", 2, Op{Type: OpInsert, Pos: 11, Text: "!"})
	assert.Equal(t, ins.Doc, " world!")
	assert.Equal(t, ins.Version, int64(4))
	assert.Equal(t, len(ins.Ops), 1)
	assert.Equal(t, ins.Ops[0].Pos, 6)
}

func TestOverlappingDeletesConverge(t *testing.T) {
	const doc = "abcdef"
	delA := Op{Type: OpDelete, Pos: 1, Len: 3} // bcd
	delB := Op{Type: OpDelete, Pos: 2, Len: 3} // cde

	r1 := mustMerge(t, doc, 0, nil, "alice", 0, delA)
	r2 := mustMerge(t, r1.Doc, 1, []PendingOp{{Seq: 1, ParticipantID: "alice", Ops: r1.Ops}}, "bob", 0, delB)

	s1 := mustMerge(t, doc, 0, nil, "bob", 0, delB)
	s2 := mustMerge(t, s1.Doc, 1, []PendingOp{{Seq: 1, ParticipantID: "bob", Ops: s1.Ops}}, "alice", 0, delA)

	assert.Equal(t, r2.Doc, s2.Doc)
	assert.Equal(t, r2.Doc, "af")
}

func TestReplaceTransformsAsDeleteInsert(t *testing.T) {
	const doc = "hello world"

	rep := mustMerge(t, doc, 0, nil, "alice", 0, Op{Type: OpReplace, Pos: 0, Len: 5, Text: "goodbye"})
	assert.Equal(t, rep.Doc, "goodbye world")

	// a concurrent trailing insert shifts by the replace's net growth
	ins := mustMerge(t, rep.Doc, 1, []PendingOp{{Seq: 1, ParticipantID: "alice", Ops: rep.Ops}},
		"bob", 0, Op{Type: OpInsert, Pos: 11, Text: "!"})
	assert.Equal(t, ins.Doc, "goodbye world!")
	assert.Equal(t, ins.Ops[0].Pos, 13)
}

func TestVersionMonotonicity(t *testing.T) {
	doc := ""
	version := int64(0)
	words := []string{"a", "b", "c", "d"}
	for _, w := range words {
		res := mustMerge(t, doc, version, nil, "alice", version, Op{Type: OpInsert, Pos: 0, Text: w})
		assert.Equal(t, res.Version, version+1)
		doc, version = res.Doc, res.Version
	}
	assert.Equal(t, version, int64(len(words)))
}

func TestBaseVersionAheadIsSkew(t *testing.T) {
	_, err := Merge("abc", 3, nil, "alice", 10, Op{Type: OpInsert, Pos: 0, Text: "x"})
	assert.Equal(t, errors.Is(err, ErrVersionSkew), true)
}

func TestIncompleteHistoryWindowIsSkew(t *testing.T) {
	// base 0 against version 2 needs two history entries, not one
	history := []PendingOp{{Seq: 2, ParticipantID: "alice", Ops: []Op{{Type: OpInsert, Pos: 0, Text: "x"}}}}
	_, err := Merge("x", 2, history, "bob", 0, Op{Type: OpInsert, Pos: 0, Text: "y"})
	assert.Equal(t, errors.Is(err, ErrVersionSkew), true)
}

func TestDeleteFullySwallowedStillBumpsVersion(t *testing.T) {
	del := mustMerge(t, "abc", 0, nil, "alice", 0, Op{Type: OpDelete, Pos: 0, Len: 3})
	dup := mustMerge(t, del.Doc, 1, []PendingOp{{Seq: 1, ParticipantID: "alice", Ops: del.Ops}},
		"bob", 0, Op{Type: OpDelete, Pos: 0, Len: 3})
	assert.Equal(t, dup.Doc, "")
	assert.Equal(t, dup.Version, int64(2))
	assert.Equal(t, len(dup.Ops), 0)
}

func TestOffsetLineColRoundTrip(t *testing.T) {
	doc := "func main() {\n\tprintln(\"hi\")\n}\n"
	for offset := 0; offset <= len([]rune(doc)); offset++ {
		line, col := OffsetToLineCol(doc, offset)
		back, err := LineColToOffset(doc, line, col)
		assert.Equal(t, err, nil)
		assert.Equal(t, back, offset)
	}
}

func TestLineColOutsideDocument(t *testing.T) {
	_, err := LineColToOffset("ab", 3, 0)
	assert.Equal(t, errors.Is(err, ErrInvalidOperation), true)

	_, err = LineColToOffset("ab", 0, 9)
	assert.Equal(t, errors.Is(err, ErrInvalidOperation), true)
}
