package interp

import (
	"fmt"

	"github.com/gikoskos/simbly/internal/fileinput"
	"github.com/gikoskos/simbly/internal/localtable"
	"github.com/gikoskos/simbly/internal/token"
)

// InterpretNextLine advances the program by one source line, per spec.md
// section 4.5. It recovers any halt triggered by an instruction handler,
// translating it into a returned error while leaving the Program's State
// and ErrorFlag as halt already set them; any other panic (a genuine bug)
// is re-raised so it aborts the process as a System error.
func (p *Program) InterpretNextLine() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if h, ok := r.(haltSignal); ok {
				err = h.err
				return
			}
			panic(r)
		}
	}()

	p.interpretNextLine()
	return nil
}

func (p *Program) interpretNextLine() {
	if p.State == MagicLine {
		finished, err := p.scan.ParseMagic()
		if err != nil {
			p.halt(err)
		}
		if finished {
			p.State = Finished
			return
		}
		p.State = InstructionLine
	}

	if p.State != InstructionLine && p.State != LastLine {
		return
	}

	p.ts.Reset()
	if err := p.scan.TokenizeNextLine(&p.ts); err != nil {
		p.halt(err)
	}
	if p.scan.EOFSeen() && p.State == InstructionLine {
		p.State = LastLine
	}

	tok, ok := p.ts.Pop()
	if !ok {
		p.State = Finished
		return
	}

	if tok.Kind == token.KindLabel {
		if err := p.locals.DefineLabel(tok.Name, localtable.Label{
			Offset: tok.Offset, Line: tok.Loc.Line, Column: tok.Loc.Column, PrevCol: tok.Loc.PrevCol,
		}); err != nil {
			p.halt(p.errAtToken(tok, "%s", err))
		}
		tok, ok = p.ts.Pop()
		if !ok {
			p.State = Finished
			return
		}
	}

	h, known := dispatch[tok.Code]
	if !known {
		p.halt(p.errAtToken(tok, "unrecognized instruction"))
	}
	p.lastCode = tok.Code
	h(p)

	// A handler that left State untouched finishes the program right after
	// this, its last, line; one that moved State elsewhere (SLEEPING,
	// BLOCKED, FINISHED via RETURN) takes precedence, matching
	// original_source/src/exec.c's interpret_next_line.
	if p.State == LastLine {
		p.State = Finished
	}
}

type handlerFunc func(p *Program)

var dispatch = map[token.Code]handlerFunc{
	token.LOAD:   loadHandler,
	token.STORE:  storeHandler,
	token.SET:    setHandler,
	token.ADD:    primitiveOpHandler,
	token.SUB:    primitiveOpHandler,
	token.MUL:    primitiveOpHandler,
	token.DIV:    primitiveOpHandler,
	token.MOD:    primitiveOpHandler,
	token.BRGT:   branchHandler,
	token.BRGE:   branchHandler,
	token.BRLT:   branchHandler,
	token.BRLE:   branchHandler,
	token.BREQ:   branchHandler,
	token.BRA:    branchHandler,
	token.DOWN:   semaphoreHandler,
	token.UP:     semaphoreHandler,
	token.SLEEP:  sleepHandler,
	token.PRINT:  printHandler,
	token.RETURN: returnHandler,
}

func loadHandler(p *Program) {
	varvalTok, _ := p.ts.Pop()
	globalTok, _ := p.ts.Pop()
	name, idx := p.globalRef(globalTok)
	v := p.globals.Load(name, idx)
	p.set(varvalTok, v)
}

func storeHandler(p *Program) {
	globalTok, _ := p.ts.Pop()
	varvalTok, _ := p.ts.Pop()
	name, idx := p.globalRef(globalTok)
	v := p.get(varvalTok)
	p.globals.Store(name, idx, v)
}

func setHandler(p *Program) {
	lhs, _ := p.ts.Pop()
	rhs, _ := p.ts.Pop()
	p.set(lhs, p.get(rhs))
}

func primitiveOpHandler(p *Program) {
	dst, _ := p.ts.Pop()
	aTok, _ := p.ts.Pop()
	bTok, _ := p.ts.Pop()
	a, b := p.get(aTok), p.get(bTok)

	code := p.lastCode
	var result int32
	switch code {
	case token.ADD:
		result = a + b
	case token.SUB:
		result = a - b
	case token.MUL:
		result = a * b
	case token.DIV:
		if b == 0 {
			p.halt(p.errAtToken(bTok, "division by zero"))
			return
		}
		result = a / b
	case token.MOD:
		if b == 0 {
			p.halt(p.errAtToken(bTok, "division by zero"))
			return
		}
		result = a % b
	}
	p.set(dst, result)
}

func branchHandler(p *Program) {
	code := p.lastCode

	var a, b int32
	if code != token.BRA {
		aTok, _ := p.ts.Pop()
		bTok, _ := p.ts.Pop()
		a, b = p.get(aTok), p.get(bTok)
	}

	labelTok, _ := p.ts.Pop()

	var jump bool
	switch code {
	case token.BRGT:
		jump = a > b
	case token.BRGE:
		jump = a >= b
	case token.BRLT:
		jump = a < b
	case token.BRLE:
		jump = a <= b
	case token.BREQ:
		jump = a == b
	case token.BRA:
		jump = true
	}

	if jump {
		p.resolveLabel(labelTok)
	}
}

func semaphoreHandler(p *Program) {
	code := p.lastCode
	globalTok, _ := p.ts.Pop()
	name, idx := p.globalRef(globalTok)

	switch code {
	case token.DOWN:
		v := p.globals.PrepareDown(name, idx)
		p.BlockedOn = v
		p.BlockedIdx = idx
		p.State = Blocked
	case token.UP:
		p.globals.Up(name, idx)
	}
}

func sleepHandler(p *Program) {
	tok, _ := p.ts.Pop()
	v := p.get(tok)
	if v > 0 {
		p.State = Sleeping
		p.SleepLeft = SleepRemainder{Sec: int64(v)}
		return
	}
	if p.log != nil {
		p.log.Printf("WARN", "program %d: SLEEP with non-positive value %d ignored", p.ID, v)
	}
}

func printHandler(p *Program) {
	litTok, _ := p.ts.Pop()

	line := fmt.Sprintf("Program %d says: %s ", p.ID, litTok.Str)
	for {
		tok, ok := p.ts.Pop()
		if !ok {
			break
		}
		line += fmt.Sprintf("%d ", p.get(tok))
	}
	line += "\n"

	p.print.Write([]byte(line))
}

func returnHandler(p *Program) {
	p.State = Finished
}

// resolveLabel implements spec.md section 4.5's branch resolution: seek
// straight there if already known, otherwise scan forward line by line,
// recording every label seen, until the target is found or the source is
// exhausted.
func (p *Program) resolveLabel(labelTok token.Token) {
	name := labelTok.Name

	if p.locals.IsLabel(name) {
		lbl, _ := p.locals.Label(name)
		p.seekToLabel(lbl)
		return
	}
	if p.locals.Exists(name) {
		p.halt(p.errAtToken(labelTok, "branching location name is already defined as a variable\n\t%s", name))
		return
	}

	for {
		var scratch token.Stream
		if err := p.scan.TokenizeNextLine(&scratch); err != nil {
			p.halt(err)
			return
		}

		found := false
		for {
			t, ok := scratch.Pop()
			if !ok {
				break
			}
			if t.Kind != token.KindLabel {
				continue
			}
			if err := p.locals.DefineLabel(t.Name, localtable.Label{
				Offset: t.Offset, Line: t.Loc.Line, Column: t.Loc.Column, PrevCol: t.Loc.PrevCol,
			}); err != nil {
				p.halt(p.errAtToken(t, "%s", err))
				return
			}
			if t.Name == name {
				found = true
			}
		}

		if found {
			lbl, _ := p.locals.Label(name)
			p.seekToLabel(lbl)
			return
		}
		if p.scan.EOFSeen() {
			p.halt(p.errAtToken(labelTok, "couldn't jump to undefined label\n\t%s", name))
			return
		}
	}
}

func (p *Program) seekToLabel(lbl localtable.Label) {
	cur := fileinput.Cursor{Line: lbl.Line, Column: lbl.Column, PrevCol: lbl.PrevCol}
	if err := p.scan.SeekToLabel(lbl.Offset, cur); err != nil {
		p.halt(err)
	}
}
