package scanner

import (
	"fmt"

	"github.com/gikoskos/simbly/internal/fileinput"
)

// Error is a program-scoped lexical/syntactic/semantic error, carrying the
// source position of the offending token rather than wherever the scanner's
// live cursor has since moved to (spec.md section 9, "cursor plumbing").
// Formatting matches spec.md section 6: "<file>:<line>:<col>: error: <msg>"
// followed by a caret line pointing at the column.
type Error struct {
	File string
	Pos  fileinput.Cursor
	Msg  string
	Line string // raw source text of the offending line, for the caret line
}

func (e Error) Error() string { return e.Msg }

// Format renders the two-line "<file>:<line>:<col>: error: <msg>\n<line>\n<caret>"
// form spec.md section 6 specifies for stdout/stderr error reporting. The
// reported position is adjusted one token back from e.Pos, which records
// wherever the cursor had advanced to *after* the offending token: when
// that landed at the start of a line, the error is attributed to the end of
// the previous line (its saved PrevCol); otherwise to the previous column
// on the same line. Grounded on original_source/src/error.c's err_msg.
func (e Error) Format() string {
	lin, col := adjustPos(e.Pos)
	if col < 1 {
		col = 1
	}
	caret := ""
	for i := 1; i < col; i++ {
		caret += " "
	}
	caret += "^"
	return fmt.Sprintf("%s:%d:%d: error: %s\n%s\n%s\n", e.File, lin, col, e.Msg, e.Line, caret)
}

func adjustPos(pos fileinput.Cursor) (line, col int) {
	if pos.Column == 1 {
		return pos.Line - 1, pos.PrevCol
	}
	return pos.Line, pos.Column - 1
}

func errAt(in *fileinput.Input, lineText string, format string, args ...interface{}) Error {
	return Error{
		File: in.Name(),
		Pos:  in.Cursor(),
		Msg:  fmt.Sprintf(format, args...),
		Line: lineText,
	}
}
