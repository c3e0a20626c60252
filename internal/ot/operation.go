package ot

import (
	"fmt"
	"sort"
)

// OpType identifies the kind of edit an operation performs.
type OpType string

const (
	OpInsert  OpType = "insert"
	OpDelete  OpType = "delete"
	OpReplace OpType = "replace"
)

// Op is a single atomic edit expressed against a known document state.
// Positions are rune offsets into the document, not byte offsets, so a
// multi-byte character counts as one position.
type Op struct {
	Type OpType `json:"type"`
	Pos  int    `json:"pos"`
	Len  int    `json:"len,omitempty"`  // delete/replace: number of runes removed
	Text string `json:"text,omitempty"` // insert/replace: runes added at Pos
}

// Validate checks structural validity of an op independent of any document.
// Bounds against a concrete document are checked at apply time.
func (o Op) Validate() error {
	if o.Pos < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidOperation, o.Pos)
	}
	switch o.Type {
	case OpInsert:
		if o.Text == "" {
			return fmt.Errorf("%w: insert with empty text", ErrInvalidOperation)
		}
		if o.Len != 0 {
			return fmt.Errorf("%w: insert carries a length", ErrInvalidOperation)
		}
	case OpDelete:
		if o.Len <= 0 {
			return fmt.Errorf("%w: delete of length %d", ErrInvalidOperation, o.Len)
		}
		if o.Text != "" {
			return fmt.Errorf("%w: delete carries text", ErrInvalidOperation)
		}
	case OpReplace:
		if o.Len <= 0 && o.Text == "" {
			return fmt.Errorf("%w: replace removes and adds nothing", ErrInvalidOperation)
		}
		if o.Len < 0 {
			return fmt.Errorf("%w: replace of length %d", ErrInvalidOperation, o.Len)
		}
	default:
		return fmt.Errorf("%w: unknown op type %q", ErrInvalidOperation, o.Type)
	}
	return nil
}

// textLen returns the rune length of the op's inserted text.
func (o Op) textLen() int {
	return len([]rune(o.Text))
}

// expand normalizes an op into its primitive set. A replace becomes a
// delete plus an insert at the same position; inserts and deletes pass
// through unchanged. All primitives in the returned set share the same
// coordinate space (the document state the op was composed against).
func expand(o Op) []Op {
	if o.Type != OpReplace {
		return []Op{o}
	}
	var set []Op
	if o.Len > 0 {
		set = append(set, Op{Type: OpDelete, Pos: o.Pos, Len: o.Len})
	}
	if o.Text != "" {
		set = append(set, Op{Type: OpInsert, Pos: o.Pos, Text: o.Text})
	}
	return set
}

// ApplySet applies a set of primitive ops that all reference the same
// document state. Applying from the highest position downward keeps the
// remaining positions valid; at equal positions the delete runs before the
// insert, which is exactly the replace decomposition.
func ApplySet(doc string, set []Op) (string, error) {
	ordered := make([]Op, len(set))
	copy(ordered, set)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Pos != ordered[j].Pos {
			return ordered[i].Pos > ordered[j].Pos
		}
		// delete first at the same position
		return ordered[i].Type == OpDelete && ordered[j].Type == OpInsert
	})

	runes := []rune(doc)
	for _, o := range ordered {
		switch o.Type {
		case OpInsert:
			if o.Pos > len(runes) {
				return "", fmt.Errorf("%w: insert at %d past end %d", ErrInvalidOperation, o.Pos, len(runes))
			}
			ins := []rune(o.Text)
			runes = append(runes[:o.Pos], append(ins, runes[o.Pos:]...)...)
		case OpDelete:
			if o.Pos+o.Len > len(runes) {
				return "", fmt.Errorf("%w: delete [%d,%d) past end %d", ErrInvalidOperation, o.Pos, o.Pos+o.Len, len(runes))
			}
			runes = append(runes[:o.Pos], runes[o.Pos+o.Len:]...)
		default:
			return "", fmt.Errorf("%w: %q is not a primitive op", ErrInvalidOperation, o.Type)
		}
	}
	return string(runes), nil
}

// Apply applies a single (possibly composite) op to a document.
func Apply(doc string, o Op) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	return ApplySet(doc, expand(o))
}
