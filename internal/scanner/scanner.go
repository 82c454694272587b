// Package scanner implements the lexer described in spec.md section 4.2: a
// one-char-lookahead reader over fileinput.Input that assembles whitespace
// delimited words, recognizes the VarVal grammar, and tokenizes one source
// line at a time into a token.Stream. Grounded on original_source/src/scanner.c,
// adapted from its fixed-size C buffers and handler table into Go slices and
// a table of func values.
package scanner

import (
	"io"
	"unicode"

	"github.com/gikoskos/simbly/internal/fileinput"
	"github.com/gikoskos/simbly/internal/token"
)

const (
	// maxSymbolLen bounds a $name identifier at 127 characters, the leading
	// letter included.
	maxSymbolLen = 127
	// maxIntDigits bounds an integer literal's decimal digits, per spec.md
	// section 4.1: "at most 8 digits".
	maxIntDigits = 8
	// maxPrintStringLen bounds a PRINT literal's length.
	maxPrintStringLen = 1023
)

var magicBytes = []byte("#PROGRAM")

// NewlineResult is FlushToNewline's three-valued outcome, preserving the
// original LINE_NOT_EMPTY tri-state (EOF / clean end-of-line / trailing
// non-whitespace before the newline).
type NewlineResult int

const (
	NewlineEOF NewlineResult = iota
	NewlineClean
	NewlineTrailing
)

// Scanner owns the lookahead byte and cursor over a single program's source,
// per spec.md section 4.2.
type Scanner struct {
	in *fileinput.Input

	lineBuf    []byte
	lineBufRow int
	eofSeen    bool
}

// New wraps in for tokenizing.
func New(in *fileinput.Input) *Scanner {
	return &Scanner{in: in}
}

// Input exposes the underlying cursor/seek handle.
func (s *Scanner) Input() *fileinput.Input { return s.in }

// EOFSeen reports whether the underlying source has been exhausted, which
// the interpreter uses to transition a program into its LastLine state: the
// line currently being tokenized still runs to completion, but no further
// line follows it.
func (s *Scanner) EOFSeen() bool { return s.eofSeen }

// SeekToLabel seeks the source to a previously recorded label definition
// and resets the lookahead to a space, per spec.md section 4.5's branch
// resolution: "seek the file to its offset, restore (line, column,
// prev_col), reset the 1-char lookahead to ' '".
func (s *Scanner) SeekToLabel(offset int64, cur fileinput.Cursor) error {
	if err := s.in.SeekTo(offset, cur); err != nil {
		return err
	}
	s.in.SetChar(' ')
	s.eofSeen = false
	s.lineBuf = s.lineBuf[:0]
	s.lineBufRow = cur.Line
	return nil
}

func (s *Scanner) char() byte { return s.in.Char() }

// nextChar advances the lookahead by one byte, tracking the raw text of the
// current line for error carets. io.EOF surfaces as a 0 byte with err set;
// every other error is a System error and is returned unwrapped.
func (s *Scanner) nextChar() error {
	c, err := s.in.NextByte()
	if err != nil {
		return err
	}
	if s.in.Cursor().Line != s.lineBufRow {
		s.lineBuf = s.lineBuf[:0]
		s.lineBufRow = s.in.Cursor().Line
	}
	if c != '\n' {
		s.lineBuf = append(s.lineBuf, c)
	}
	return nil
}

func (s *Scanner) curLine() string { return string(s.lineBuf) }

func (s *Scanner) errf(format string, args ...interface{}) Error {
	return errAt(s.in, s.curLine(), format, args...)
}

func isSpace(c byte) bool { return unicode.IsSpace(rune(c)) }

// FlushToChar skips whitespace up to and including the next non-whitespace
// byte, per spec.md section 4.2. ok is false at EOF.
func (s *Scanner) FlushToChar() (ok bool, err error) {
	for {
		if e := s.nextChar(); e != nil {
			if e == io.EOF {
				s.eofSeen = true
				return false, nil
			}
			return false, e
		}
		if s.char() == EOF {
			return false, nil
		}
		if !isSpace(s.char()) {
			return true, nil
		}
	}
}

// EOF is the sentinel lookahead byte value used once the underlying stream
// is exhausted, matching C's int-widened EOF sentinel in spirit.
const EOF = 0

// FlushToNewline requires the rest of the current line to be blank,
// returning NewlineTrailing the instant it sees a non-whitespace byte
// before the newline (spec.md section 4.2, the original's LINE_NOT_EMPTY).
func (s *Scanner) FlushToNewline() (NewlineResult, error) {
	for s.char() != '\n' {
		if err := s.nextChar(); err != nil {
			if err == io.EOF {
				s.eofSeen = true
				return NewlineEOF, nil
			}
			return NewlineEOF, err
		}
		if s.eofSeen {
			return NewlineEOF, nil
		}
		if !isSpace(s.char()) {
			return NewlineTrailing, nil
		}
	}
	return NewlineClean, nil
}

// GetNextWord assembles the next whitespace-delimited word into a fresh
// string, per spec.md section 4.2. If sameLineOnly and a newline has
// already been crossed (or the current lookahead already is one), it
// returns "", false, nil without consuming anything further. Words beyond
// maxLen halt with "symbol too big to parse".
func (s *Scanner) GetNextWord(maxLen int, sameLineOnly bool) (string, bool, error) {
	prevLine := s.in.Cursor().Line

	if sameLineOnly && s.char() == '\n' {
		return "", false, nil
	}

	if isSpace(s.char()) || s.char() == EOF {
		ok, err := s.FlushToChar()
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", false, nil
		}
	}

	if sameLineOnly && prevLine != s.in.Cursor().Line {
		return "", false, nil
	}

	buf := make([]byte, 0, 16)
	buf = append(buf, s.char())

	for {
		if err := s.nextChar(); err != nil {
			if err == io.EOF {
				s.eofSeen = true
				break
			}
			return "", false, err
		}
		if s.eofSeen {
			break
		}
		if isSpace(s.char()) {
			break
		}
		if len(buf) == maxLen {
			return "", false, s.errf("symbol too big to parse; maximum symbol name length allowed is %d", maxLen)
		}
		buf = append(buf, s.char())
	}

	return string(buf), true, nil
}

// ParseMagic consumes the leading "#PROGRAM" magic bytes and the rest of
// that line, per spec.md section 4.2. It returns (finished, err): finished
// is true when EOF during the magic line should quietly end the program
// with no error (an empty file is legal).
func (s *Scanner) ParseMagic() (finished bool, err error) {
	// Read the magic bytes plus one extra lookahead byte, so that once the
	// bytes check out, s.char() already holds whatever immediately follows
	// them (a newline, or trailing whitespace) for the checks below.
	got := make([]byte, 0, len(magicBytes))
	for i := 0; i < len(magicBytes)+1; i++ {
		if e := s.nextChar(); e != nil {
			if e == io.EOF {
				return true, nil
			}
			return false, e
		}
		if s.eofSeen {
			return true, nil
		}
		if i < len(magicBytes) {
			got = append(got, s.char())
		}
	}

	for i, b := range magicBytes {
		if got[i] != b {
			return false, s.errf("not a valid simbly program; valid simbly programs begin with the magic bytes %q", string(magicBytes))
		}
	}

	if s.char() != '\n' {
		if !isSpace(s.char()) {
			return false, s.errf("not a valid simbly program; valid simbly programs begin with the magic bytes %q", string(magicBytes))
		}
		thisLine := s.in.Cursor().Line
		ok, err := s.FlushToChar()
		if err != nil {
			return false, err
		}
		if thisLine == s.in.Cursor().Line {
			return false, s.errf("unexpected character encountered in the same line as the magic bytes")
		}
		if !ok {
			return true, nil
		}
	}

	return false, nil
}

// isValidLabel reports whether word satisfies spec.md section 4.1's label
// grammar: starts with 'L', length >= 2, all-alphanumeric, and not the
// literal spelling "LOAD".
func isValidLabel(word string) bool {
	if len(word) < 2 || word[0] != 'L' || word == "LOAD" {
		return false
	}
	for i := 1; i < len(word); i++ {
		c := word[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// ParseVarValToken recognizes one VarVal: an integer literal, a $name
// scalar reference, or a $name[VarVal] array reference (arbitrary nesting
// depth), per spec.md section 4.1. allowLiteral must be false for a
// global-name operand, which the grammar forbids from being a literal.
func (s *Scanner) ParseVarValToken(word string, allowLiteral bool) (token.Token, error) {
	loc := s.in.Cursor()
	tok, rest, err := s.parseVarVal(word, loc)
	if err != nil {
		return token.Token{}, err
	}
	if rest != "" {
		return token.Token{}, s.errf("unexpected trailing characters %q after value", rest)
	}
	if !allowLiteral && tok.Kind == token.KindIntVal {
		return token.Token{}, s.errf("a literal value is not allowed here; a global name was expected")
	}
	return tok, nil
}

// parseVarVal parses a prefix of word and returns the remaining
// unconsumed suffix (used for the ']' that closes an array index).
func (s *Scanner) parseVarVal(word string, loc fileinput.Cursor) (token.Token, string, error) {
	if word == "" {
		return token.Token{}, "", s.errf("unrecognized string isn't variable or integer value")
	}

	switch {
	case word[0] == '$':
		return s.parseVarRef(word, loc)
	case word[0] == '-' || (word[0] >= '0' && word[0] <= '9'):
		return s.parseIntLit(word, loc)
	default:
		return token.Token{}, "", s.errf("unrecognized string isn't variable or integer value\n\t%s", word)
	}
}

func (s *Scanner) parseIntLit(word string, loc fileinput.Cursor) (token.Token, string, error) {
	i := 0
	if word[i] == '-' {
		i++
	}
	start := i
	for i < len(word) && word[i] >= '0' && word[i] <= '9' {
		i++
	}
	if i == start {
		return token.Token{}, "", s.errf("invalid characters detected while parsing number")
	}
	if i-start > maxIntDigits {
		return token.Token{}, "", s.errf("integer exceeds maximum number of digits: %d", maxIntDigits)
	}

	rest := word[i:]
	if rest != "" && rest[0] != ']' {
		return token.Token{}, "", s.errf("invalid characters detected while parsing number")
	}

	var v int64
	neg := word[0] == '-'
	digits := word[start:i]
	for _, c := range digits {
		v = v*10 + int64(c-'0')
	}
	if neg {
		v = -v
	}

	return token.Token{Kind: token.KindIntVal, Loc: loc, Int: int32(v)}, rest, nil
}

func (s *Scanner) parseVarRef(word string, loc fileinput.Cursor) (token.Token, string, error) {
	body := word[1:]
	if body == "" || !isLetter(body[0]) {
		return token.Token{}, "", s.errf("variable names always begin with a letter, followed by alphanumeric characters")
	}

	i := 1
	for i < len(body) && isAlnum(body[i]) {
		i++
	}
	if i > maxSymbolLen {
		return token.Token{}, "", s.errf("symbol exceeds maximum length of allowed symbol names: %d", maxSymbolLen)
	}

	name := body[:i]
	rest := body[i:]

	if rest == "" || rest[0] == ']' {
		return token.Token{Kind: token.KindIntVar, Loc: loc, Name: name}, rest, nil
	}

	if rest[0] != '[' {
		return token.Token{}, "", s.errf("variable names always begin with a letter, followed by alphanumeric characters")
	}

	idxTok, idxRest, err := s.parseVarVal(rest[1:], loc)
	if err != nil {
		return token.Token{}, "", err
	}
	if idxRest == "" || idxRest[0] != ']' {
		return token.Token{}, "", s.errf("couldn't parse array index closing brackets")
	}

	arrIdx := idxTok
	arr := token.Token{Kind: token.KindIntArr, Loc: loc, Name: name, Index: &arrIdx}
	return arr, idxRest[1:], nil
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isAlnum(c byte) bool  { return isLetter(c) || c >= '0' && c <= '9' }

// handler parses one instruction's operands into ts, given the instruction
// has already been pushed. It returns an error for a halting condition.
type handler func(s *Scanner, ts *token.Stream, code token.Code) error

var handlers = map[token.Code]handler{
	token.LOAD:   loadStoreHandler,
	token.STORE:  loadStoreHandler,
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

// TokenizeNextLine reads one source line and pushes its tokens onto ts, per
// spec.md section 4.2: an optional leading LABEL, then exactly one
// INSTRUCTION and its operands.
func (s *Scanner) TokenizeNextLine(ts *token.Stream) error {
	word, ok, err := s.GetNextWord(maxSymbolLen, false)
	if err != nil {
		return err
	}

	if ok && isValidLabel(word) {
		ts.Push(token.Token{Kind: token.KindLabel, Loc: s.in.Cursor(), Name: word, Offset: mustOffset(s)})

		word, ok, err = s.GetNextWord(maxSymbolLen, true)
		if err != nil {
			return err
		}
		if !ok {
			return s.errf("line with label should be followed by instruction")
		}
	}

	if !ok {
		return nil
	}

	code, known := token.CodeByName(word)
	if !known {
		return s.errf("unrecognized instruction\n\t%s", word)
	}

	ts.Push(token.Token{Kind: token.KindInstruction, Loc: s.in.Cursor(), Code: code})

	h := handlers[code]
	if err := h(s, ts, code); err != nil {
		return err
	}

	if res, err := s.FlushToNewline(); err != nil {
		return err
	} else if res == NewlineTrailing {
		return s.errf("more arguments than expected, after %s instruction", code)
	}

	return nil
}

func mustOffset(s *Scanner) int64 {
	off, err := s.in.Offset()
	if err != nil {
		return 0
	}
	return off
}

func (s *Scanner) requireWord(code token.Code, nArgs int) (string, error) {
	word, ok, err := s.GetNextWord(maxSymbolLen, true)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", s.errf("%s instruction expects %s", code, argCount(nArgs))
	}
	return word, nil
}

func argCount(n int) string {
	switch n {
	case 1:
		return "one argument"
	case 2:
		return "two arguments"
	default:
		return "three arguments"
	}
}

func requireVarName(s *Scanner, code token.Code, word string) error {
	if len(word) == 0 || word[0] == '-' || (word[0] >= '0' && word[0] <= '9') {
		return s.errf("%s instruction expects a variable name as its first argument", code)
	}
	return nil
}

func parseOperand(s *Scanner, ts *token.Stream, word string, allowLiteral bool) error {
	tok, err := s.ParseVarValToken(word, allowLiteral)
	if err != nil {
		return err
	}
	ts.Push(tok)
	return nil
}

func loadStoreHandler(s *Scanner, ts *token.Stream, code token.Code) error {
	// LOAD dst(var) src(global-name); STORE dst(global-name) src(var/value).
	// The first operand is never a literal for either instruction; the
	// second operand may not be a literal only when it names a global (LOAD's
	// source), per spec.md section 4.1's "global-name operand ... may not be
	// a literal".
	for i := 0; i < 2; i++ {
		word, err := s.requireWord(code, 2)
		if err != nil {
			return err
		}
		if i == 0 {
			if err := requireVarName(s, code, word); err != nil {
				return err
			}
		}
		allowLiteral := !(i == 1 && code == token.LOAD)
		if err := parseOperand(s, ts, word, allowLiteral); err != nil {
			return err
		}
	}
	return nil
}

func setHandler(s *Scanner, ts *token.Stream, code token.Code) error {
	word, err := s.requireWord(code, 2)
	if err != nil {
		return err
	}
	if err := requireVarName(s, code, word); err != nil {
		return err
	}
	if err := parseOperand(s, ts, word, false); err != nil {
		return err
	}
	word, err = s.requireWord(code, 2)
	if err != nil {
		return err
	}
	return parseOperand(s, ts, word, true)
}

func primitiveOpHandler(s *Scanner, ts *token.Stream, code token.Code) error {
	word, err := s.requireWord(code, 3)
	if err != nil {
		return err
	}
	if err := requireVarName(s, code, word); err != nil {
		return err
	}
	if err := parseOperand(s, ts, word, false); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		word, err = s.requireWord(code, 3)
		if err != nil {
			return err
		}
		if err := parseOperand(s, ts, word, true); err != nil {
			return err
		}
	}
	return nil
}

func branchHandler(s *Scanner, ts *token.Stream, code token.Code) error {
	if code != token.BRA {
		for i := 0; i < 2; i++ {
			word, err := s.requireWord(code, 3)
			if err != nil {
				return err
			}
			if err := parseOperand(s, ts, word, true); err != nil {
				return err
			}
		}
	}

	word, ok, err := s.GetNextWord(maxSymbolLen, true)
	if err != nil {
		return err
	}
	if !ok || !isValidLabel(word) {
		return s.errf("%s instruction expects a label as its last argument", code)
	}
	ts.Push(token.Token{Kind: token.KindLabel, Loc: s.in.Cursor(), Name: word})
	return nil
}

func semaphoreHandler(s *Scanner, ts *token.Stream, code token.Code) error {
	word, err := s.requireWord(code, 1)
	if err != nil {
		return err
	}
	if len(word) == 0 || word[0] == '-' || (word[0] >= '0' && word[0] <= '9') {
		return s.errf("%s instruction expects a global variable as its argument", code)
	}
	return parseOperand(s, ts, word, false)
}

func sleepHandler(s *Scanner, ts *token.Stream, code token.Code) error {
	word, err := s.requireWord(code, 1)
	if err != nil {
		return err
	}
	return parseOperand(s, ts, word, true)
}

func printHandler(s *Scanner, ts *token.Stream, code token.Code) error {
	ok, err := s.FlushToChar()
	if err != nil {
		return err
	}
	if !ok || s.char() != '"' {
		return s.errf("%s instruction must be followed by a string and 0 or more arguments", code)
	}

	thisLine := s.in.Cursor().Line
	buf := make([]byte, 0, 32)

	for {
		if e := s.nextChar(); e != nil {
			if e == io.EOF {
				return s.errf("unexpected EOF encountered while parsing string\n\t%s", string(buf))
			}
			return e
		}
		c := s.char()
		if len(buf) >= maxPrintStringLen {
			return s.errf("string too big to parse; maximum string length allowed is %d", maxPrintStringLen)
		}
		if !isPrint(c) {
			return s.errf("non-printable character with ascii code %d encountered while parsing string", c)
		}
		if c == '"' {
			if e := s.nextChar(); e != nil {
				if e == io.EOF {
					return s.errf("unexpected EOF encountered while parsing %s instruction", code)
				}
				return e
			}
			if !isSpace(s.char()) {
				return s.errf("strings must be followed by whitespace")
			}
			break
		}
		buf = append(buf, c)
	}

	ts.Push(token.Token{Kind: token.KindString, Loc: s.in.Cursor(), Str: string(buf)})

	ok, err = s.FlushToChar()
	if err != nil {
		return err
	}
	if !ok || thisLine != s.in.Cursor().Line {
		return nil
	}

	for {
		word, ok, err := s.GetNextWord(maxSymbolLen, true)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := parseOperand(s, ts, word, true); err != nil {
			return err
		}
	}
	return nil
}

func returnHandler(s *Scanner, ts *token.Stream, code token.Code) error {
	return nil
}

func isPrint(c byte) bool { return c >= 0x20 && c < 0x7f }
