// Package interp implements the Program state machine and instruction
// handlers described in spec.md section 4.5, grounded on
// original_source/src/program.c and original_source/src/exec.c.
package interp

import (
	"io"
	"sync"
	"time"

	"github.com/gikoskos/simbly/internal/fileinput"
	"github.com/gikoskos/simbly/internal/flushio"
	"github.com/gikoskos/simbly/internal/globaltable"
	"github.com/gikoskos/simbly/internal/localtable"
	"github.com/gikoskos/simbly/internal/rtlog"
	"github.com/gikoskos/simbly/internal/scanner"
	"github.com/gikoskos/simbly/internal/token"
)

// State is a Program's position in its lifecycle, per spec.md section 3.
type State int

const (
	MagicLine State = iota
	InstructionLine
	LastLine
	Sleeping
	Blocked
	Finished
)

func (s State) String() string {
	switch s {
	case MagicLine:
		return "MAGIC_LINE"
	case InstructionLine:
		return "INSTRUCTION_LINE"
	case LastLine:
		return "LAST_LINE"
	case Sleeping:
		return "SLEEPING"
	case Blocked:
		return "BLOCKED"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// SleepRemainder is the (seconds, nanoseconds) countdown a SLEEPING program
// carries, per spec.md section 4.7.
type SleepRemainder struct {
	Sec  int64
	Nsec int64
}

var (
	idMu  sync.Mutex
	idCtr int32 = 1
)

// nextID hands out unique, never-reused, ascending program ids starting at
// 1, grounded on original_source/src/program.c's generate_program_id.
func nextID() int32 {
	idMu.Lock()
	defer idMu.Unlock()
	id := idCtr
	idCtr++
	return id
}

// PrintSink serializes PRINT output across every program sharing it, per
// spec.md section 4.5's "atomic operation under a process-wide print lock".
// It flushes after every write so a program's output and the shell's own
// prompt never appear to interleave out of order on a buffered stdout.
type PrintSink struct {
	mu sync.Mutex
	wf flushio.WriteFlusher
}

// NewPrintSink wraps w for atomic, program-interleaving-safe, flushed writes.
func NewPrintSink(w io.Writer) *PrintSink {
	return &PrintSink{wf: flushio.NewWriteFlusher(w)}
}

// Write implements io.Writer, serializing p atomically against every other
// writer sharing this sink -- PRINT output and the scheduler's "finished" /
// "was killed unexpectedly" status lines alike, per spec.md section 5's
// process-wide print mutex.
func (ps *PrintSink) Write(p []byte) (int, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	n, err := ps.wf.Write(p)
	if err != nil {
		return n, err
	}
	return n, ps.wf.Flush()
}

// Program is one running Simbly program: its source cursor, local name
// table, pending token line, and scheduling state. Per spec.md section 3's
// invariants, Argv is read-only, ids are never reused, and BlockedOn is
// dereferenced only while State == Blocked.
type Program struct {
	ID       int32
	FileName string
	Argv     []int32 // Argv[0]=id, Argv[1]=argc, Argv[2:]=caller-supplied args

	State      State
	SleepLeft  SleepRemainder
	BlockedOn  *globaltable.Var
	BlockedIdx int
	ErrorFlag  bool

	scan     *scanner.Scanner
	locals   localtable.Table
	ts       token.Stream
	lastCode token.Code

	globals *globaltable.Table
	print   *PrintSink
	log     *rtlog.Logger
}

// SetLogger attaches a logger a handler may use for non-fatal warnings (a
// non-positive SLEEP value, for instance). Nil is fine; warnings are simply
// dropped.
func (p *Program) SetLogger(l *rtlog.Logger) { p.log = l }

// New constructs a Program reading from r, named name for diagnostics, with
// the given caller-supplied arguments (argc is len(args)).
func New(name string, r io.ReadSeeker, args []int32, globals *globaltable.Table, print *PrintSink) *Program {
	argv := make([]int32, len(args)+2)
	argv[0] = nextID()
	argv[1] = int32(len(args))
	copy(argv[2:], args)

	return &Program{
		ID:       argv[0],
		FileName: name,
		Argv:     argv,
		State:    MagicLine,
		scan:     scanner.New(fileinput.New(name, r)),
		globals:  globals,
		print:    print,
	}
}

// Kill force-terminates the program with its error flag set, for the
// scheduler's Admission.Kill path (spec.md section 4.8). If the program is
// currently BLOCKED, the caller must first force-wake its GlobalVar so the
// worker's BlockedTick loop observes the state change.
func (p *Program) Kill() {
	p.State = Finished
	p.ErrorFlag = true
}

// Dump writes a human-readable snapshot of the program's state to w, for
// debugging, the shell's "list -v" command and cmd/simbly's -dump-on-exit.
// It prints the id, file name, state, argc and argv; the cursor and the
// local table are not included. Modeled on
// original_source/src/program.c's print_program_state.
func (p *Program) Dump(w io.Writer) {
	io.WriteString(w, "program "+itoa(p.ID)+" ("+p.FileName+")\n")
	io.WriteString(w, "  state: "+p.State.String()+"\n")
	io.WriteString(w, "  argc: "+itoa(p.Argv[1])+"\n")
	for i := 2; i < len(p.Argv); i++ {
		io.WriteString(w, "  argv["+itoa(int32(i-2))+"] = "+itoa(p.Argv[i])+"\n")
	}
}

func itoa(v int32) string {
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Duration converts a SleepRemainder to a time.Duration, for the
// scheduler's actual OS sleep call.
func (sr SleepRemainder) Duration() time.Duration {
	return time.Duration(sr.Sec)*time.Second + time.Duration(sr.Nsec)*time.Nanosecond
}
