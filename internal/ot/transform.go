package ot

import "sort"

// Transform rules for rebasing one participant's op set across a concurrent,
// already-applied op set. Both sets reference the same document state; the
// result references the state after the applied set.
//
// Rules:
//   - insert vs insert at the same position: the lexicographically smaller
//     participant ID keeps the left slot, so both delivery orders converge.
//   - insert inside a concurrent delete: the insert survives, attached at the
//     deletion boundary, never silently dropped.
//   - delete vs delete: overlapping ranges are intersected away.
//   - delete across a concurrent interior insert: the delete splits so the
//     inserted text survives.

// transformSet rebases mine (all primitives in one coordinate space) over the
// applied set theirs. mineID/theirID break insert-position ties.
func transformSet(mine []Op, mineID string, theirs []Op, theirID string) []Op {
	mineFirst := mineID < theirID

	var out []Op
	for _, m := range mine {
		switch m.Type {
		case OpInsert:
			out = append(out, Op{
				Type: OpInsert,
				Pos:  mapInsertPos(m.Pos, theirs, mineFirst),
				Text: m.Text,
			})
		case OpDelete:
			out = append(out, transformDelete(m, theirs)...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	return out
}

// mapInsertPos re-expresses an insertion point after the applied set. An
// insertion point inside an applied delete range collapses to the mapped
// deletion boundary. before decides who wins an exact position tie.
func mapInsertPos(x int, applied []Op, before bool) int {
	shift := 0
	for _, a := range applied {
		switch a.Type {
		case OpInsert:
			if a.Pos < x || (a.Pos == x && !before) {
				shift += a.textLen()
			}
		case OpDelete:
			end := a.Pos + a.Len
			switch {
			case end <= x:
				shift -= a.Len
			case a.Pos < x:
				// inside the deleted range: attach at its boundary
				shift -= x - a.Pos
			}
		}
	}
	return x + shift
}

// transformDelete rebases a delete range over the applied set. The range
// first loses any part the applied set already deleted, then splits around
// applied interior inserts so their text is not swallowed, and finally each
// surviving fragment is shifted into the new coordinate space.
func transformDelete(d Op, applied []Op) []Op {
	frags := [][2]int{{d.Pos, d.Pos + d.Len}}

	// subtract their delete ranges
	for _, a := range applied {
		if a.Type != OpDelete {
			continue
		}
		frags = subtractRange(frags, a.Pos, a.Pos+a.Len)
	}

	// split at their interior insert points
	for _, a := range applied {
		if a.Type != OpInsert {
			continue
		}
		var next [][2]int
		for _, f := range frags {
			if a.Pos > f[0] && a.Pos < f[1] {
				next = append(next, [2]int{f[0], a.Pos}, [2]int{a.Pos, f[1]})
			} else {
				next = append(next, f)
			}
		}
		frags = next
	}

	var out []Op
	for _, f := range frags {
		start := mapDeleteBound(f[0], applied, true)
		end := mapDeleteBound(f[1], applied, false)
		if end > start {
			out = append(out, Op{Type: OpDelete, Pos: start, Len: end - start})
		}
	}
	return out
}

// mapDeleteBound maps a delete-fragment boundary. An applied insert exactly
// at the fragment start pushes the fragment right (the inserted text is not
// part of it); one exactly at the fragment end does not.
func mapDeleteBound(x int, applied []Op, isStart bool) int {
	shift := 0
	for _, a := range applied {
		switch a.Type {
		case OpInsert:
			if a.Pos < x || (a.Pos == x && isStart) {
				shift += a.textLen()
			}
		case OpDelete:
			end := a.Pos + a.Len
			switch {
			case end <= x:
				shift -= a.Len
			case a.Pos < x:
				shift -= x - a.Pos
			}
		}
	}
	return x + shift
}

// subtractRange removes [s,e) from every fragment.
func subtractRange(frags [][2]int, s, e int) [][2]int {
	var out [][2]int
	for _, f := range frags {
		if e <= f[0] || s >= f[1] {
			out = append(out, f)
			continue
		}
		if f[0] < s {
			out = append(out, [2]int{f[0], s})
		}
		if e < f[1] {
			out = append(out, [2]int{e, f[1]})
		}
	}
	return out
}
