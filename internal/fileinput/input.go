// Package fileinput provides a seekable, cursor-tracking byte source for the
// Simbly scanner. Unlike a plain bufio.Reader, it remembers enough about its
// own position to let a caller seek back to any previously-visited byte
// offset and resume scanning as if it had arrived there freshly -- this is
// what lets the interpreter resolve backward branches by name instead of
// pre-tokenizing a whole file up front.
package fileinput

import (
	"bufio"
	"fmt"
	"io"
)

// Location names a line in an Input file.
type Location struct {
	Name string
	Line int
}

func (loc Location) String() string { return fmt.Sprintf("%v:%v", loc.Name, loc.Line) }

// Cursor is the (line, column, prev_col) triple spec.md tracks per program.
// Column is 1-based and counts bytes consumed on the current line; PrevCol
// holds the last column of the previous line, so an error pointing just past
// end-of-line still lands on real source text.
type Cursor struct {
	Line    int
	Column  int
	PrevCol int
}

// Input reads bytes sequentially from a single io.ReadSeeker (normally an
// open program file), tracking the current Cursor and the most recently
// consumed byte. SeekTo lets the scanner jump back to a label's recorded
// offset and keep going from there.
type Input struct {
	name string
	r    io.ReadSeeker
	br   *bufio.Reader

	cur Cursor
	c   byte // last byte consumed; 0 before the first NextByte
}

// New wraps r (named name, used only for error messages) for cursor-tracked,
// seekable reading starting at line 1, column 1.
func New(name string, r io.ReadSeeker) *Input {
	return &Input{
		name: name,
		r:    r,
		br:   bufio.NewReader(r),
		cur:  Cursor{Line: 1, Column: 1},
	}
}

// Name returns the file name this Input was constructed with, for use in
// error locations.
func (in *Input) Name() string { return in.name }

// Cursor returns the current (line, column, prev_col) position.
func (in *Input) Cursor() Cursor { return in.cur }

// Char returns the last byte consumed by NextByte, or 0 if none yet.
func (in *Input) Char() byte { return in.c }

// NextByte advances one byte, updating the cursor exactly as spec.md's
// scanner does: a newline bumps the line, stashes the outgoing column into
// PrevCol, and resets the column to 1; anything else just advances the
// column. Returns io.EOF when the underlying stream is exhausted.
func (in *Input) NextByte() (byte, error) {
	b, err := in.br.ReadByte()
	if err != nil {
		in.c = 0
		return 0, err
	}
	in.c = b
	if b == '\n' {
		in.cur.PrevCol = in.cur.Column
		in.cur.Line++
		in.cur.Column = 1
	} else {
		in.cur.Column++
	}
	return b, nil
}

// SeekTo restores the stream to byte offset off and sets the cursor to cur,
// discarding any buffered lookahead. The 1-char lookahead (Char) is not
// touched here; spec.md requires callers to reset it to ' ' explicitly after
// a branch-driven seek, via SetChar.
func (in *Input) SeekTo(off int64, cur Cursor) error {
	if _, err := in.r.Seek(off, io.SeekStart); err != nil {
		return err
	}
	in.br.Reset(in.r)
	in.cur = cur
	return nil
}

// Offset reports the current byte offset into the stream, accounting for
// any bytes buffered-but-unconsumed by the internal bufio.Reader. Label
// definitions record this value so a later branch can SeekTo it.
func (in *Input) Offset() (int64, error) {
	pos, err := in.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return pos - int64(in.br.Buffered()), nil
}

// SetChar overrides the 1-char lookahead without consuming a byte. Used
// after SeekTo to reset the lookahead to ' ' per spec.md's branch
// resolution rule.
func (in *Input) SetChar(c byte) { in.c = c }
