package interp

import "github.com/gikoskos/simbly/internal/token"

// get evaluates a VarVal token to its current value, per spec.md section
// 4.4/4.5. argc/argv are special-cased against Argv rather than the local
// table, grounded on original_source/src/exec.c's __varval_get_value.
func (p *Program) get(tok token.Token) int32 {
	switch tok.Kind {
	case token.KindIntVal:
		return tok.Int

	case token.KindIntVar:
		if tok.Name == "argc" {
			return p.Argv[1]
		}
		if p.locals.IsLabel(tok.Name) {
			p.halt(p.errAtToken(tok, "there's already a label with the same name defined\n\t%s", tok.Name))
			return 0
		}
		v, err := p.locals.Scalar(tok.Name)
		if err != nil {
			p.halt(p.errAtToken(tok, "%s", err))
			return 0
		}
		return v

	case token.KindIntArr:
		idx := p.get(*tok.Index)
		if tok.Name == "argv" {
			if idx < 0 || int(idx) >= int(p.Argv[1]) {
				p.halt(p.errAtToken(tok, "tried to access area outside of argv array which is of size %d", p.Argv[1]))
				return 0
			}
			return p.Argv[idx+2]
		}
		if p.locals.IsLabel(tok.Name) {
			p.halt(p.errAtToken(tok, "there's already a label with the same name defined\n\t%s", tok.Name))
			return 0
		}
		v, err := p.locals.Index(tok.Name, idx)
		if err != nil {
			p.halt(p.errAtToken(tok, "%s", err))
			return 0
		}
		return v

	default:
		p.halt(p.errAtToken(tok, "expected a value"))
		return 0
	}
}

// set assigns v to a VarVal token that must denote an assignable location.
// argc and argv are constant, per spec.md section 4.4.
func (p *Program) set(tok token.Token, v int32) {
	switch tok.Kind {
	case token.KindIntVar:
		if tok.Name == "argc" {
			p.halt(p.errAtToken(tok, "the value of argc is constant; setting it to another value isn't allowed"))
			return
		}
		if p.locals.IsLabel(tok.Name) {
			p.halt(p.errAtToken(tok, "there's already a label with the same name defined\n\t%s", tok.Name))
			return
		}
		if err := p.locals.SetScalar(tok.Name, v); err != nil {
			p.halt(p.errAtToken(tok, "%s", err))
		}

	case token.KindIntArr:
		if tok.Name == "argv" {
			p.halt(p.errAtToken(tok, "the value of argv is constant; setting it to another value isn't allowed"))
			return
		}
		idx := p.get(*tok.Index)
		if err := p.locals.SetIndex(tok.Name, idx, v); err != nil {
			p.halt(p.errAtToken(tok, "%s", err))
		}

	default:
		p.halt(p.errAtToken(tok, "left-hand side must be a variable"))
	}
}

// globalRef resolves a LOAD/STORE/DOWN/UP operand to the (name, index) pair
// the global table is keyed on, evaluating a nested index expression if the
// operand is an array reference.
func (p *Program) globalRef(tok token.Token) (string, int) {
	switch tok.Kind {
	case token.KindIntVar:
		return tok.Name, 0
	case token.KindIntArr:
		idx := p.get(*tok.Index)
		if idx < 0 {
			p.halt(p.errAtToken(tok, "negative index %d into %q", idx, tok.Name))
			return tok.Name, 0
		}
		return tok.Name, int(idx)
	default:
		p.halt(p.errAtToken(tok, "a global name was expected"))
		return "", 0
	}
}
