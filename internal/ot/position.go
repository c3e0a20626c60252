package ot

import "fmt"

// Cursor positions cross the API as (line, column) pairs while every
// transform works on rune offsets. These helpers convert at the boundary.
// Lines and columns are zero-based; a newline terminates its line.

// OffsetToLineCol converts a rune offset into line/column coordinates.
// Offsets past the end clamp to the final position.
func OffsetToLineCol(doc string, offset int) (line, col int) {
	if offset < 0 {
		return 0, 0
	}
	for i, r := range []rune(doc) {
		if i == offset {
			return line, col
		}
		if r == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}

// LineColToOffset converts line/column coordinates into a rune offset.
// Coordinates pointing outside the document are an error.
func LineColToOffset(doc string, line, col int) (int, error) {
	if line < 0 || col < 0 {
		return 0, fmt.Errorf("%w: position %d:%d", ErrInvalidOperation, line, col)
	}
	curLine, curCol := 0, 0
	runes := []rune(doc)
	for i, r := range runes {
		if curLine == line && curCol == col {
			return i, nil
		}
		if curLine > line {
			break
		}
		if r == '\n' {
			curLine++
			curCol = 0
		} else {
			curCol++
		}
	}
	if curLine == line && curCol == col {
		return len(runes), nil
	}
	return 0, fmt.Errorf("%w: position %d:%d outside document", ErrInvalidOperation, line, col)
}
