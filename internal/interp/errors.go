package interp

import (
	"fmt"

	"github.com/gikoskos/simbly/internal/fileinput"
	"github.com/gikoskos/simbly/internal/scanner"
	"github.com/gikoskos/simbly/internal/token"
)

// halt marks the program FINISHED with its error flag set and unwinds the
// current InterpretNextLine call via panic, mirroring the teacher's
// panic-based halt pattern. It is recovered in InterpretNextLine; any other
// panic type is a genuine bug and is left to propagate as a System error.
type haltSignal struct{ err error }

func (p *Program) halt(err error) {
	p.State = Finished
	p.ErrorFlag = true
	panic(haltSignal{err})
}

// errAtToken builds a scanner.Error anchored at tok's recorded position,
// rather than wherever the scanner's live cursor has since advanced to, per
// spec.md section 9's "cursor plumbing" requirement.
func (p *Program) errAtToken(tok token.Token, format string, args ...interface{}) scanner.Error {
	return scanner.Error{
		File: p.FileName,
		Pos:  tok.Loc,
		Msg:  fmt.Sprintf(format, args...),
	}
}

func (p *Program) errAtCursor(cur fileinput.Cursor, format string, args ...interface{}) scanner.Error {
	return scanner.Error{File: p.FileName, Pos: cur, Msg: fmt.Sprintf(format, args...)}
}
