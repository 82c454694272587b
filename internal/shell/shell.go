// Package shell implements the thin line-oriented command interface of
// spec.md section 6: run/kill/list/help/exit over whitespace-separated
// commands, one per line. It is intentionally thin, per SPEC_FULL.md's
// domain-stack decision to keep prompt styling and line-editing out of the
// core's scope.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gikoskos/simbly/internal/rtlog"
	"github.com/gikoskos/simbly/internal/scheduler"
)

// maxIntDigits caps a run command's integer arguments, per spec.md section 6.
const maxIntDigits = 8

// Shell reads commands from in and writes replies/echoes to out, dispatching
// against a scheduler.Admission.
type Shell struct {
	in  *bufio.Scanner
	out io.Writer

	admission *scheduler.Admission
	log       *rtlog.Logger
}

// New constructs a Shell reading newline-delimited commands from r.
func New(r io.Reader, out io.Writer, admission *scheduler.Admission, log *rtlog.Logger) *Shell {
	return &Shell{
		in:        bufio.NewScanner(r),
		out:       out,
		admission: admission,
		log:       log,
	}
}

// Run reads and dispatches commands until EOF, an exit command, or a scan
// error, per spec.md section 6's external interface.
func (sh *Shell) Run() error {
	for sh.in.Scan() {
		line := strings.TrimSpace(sh.in.Text())
		if line == "" {
			continue
		}
		if sh.dispatch(line) {
			return nil
		}
	}
	return sh.in.Err()
}

// dispatch runs one command line and reports whether the shell should exit.
func (sh *Shell) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "run", "r":
		sh.cmdRun(args)
	case "kill", "k":
		sh.cmdKill(args)
	case "list", "l":
		sh.cmdList(args)
	case "help", "h":
		sh.cmdHelp()
	case "exit", "quit", "q":
		return true
	default:
		fmt.Fprintln(sh.out, "unrecognized command")
	}
	return false
}

func (sh *Shell) cmdRun(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(sh.out, "usage: run <file> [int ...]")
		return
	}

	file := args[0]
	argv := make([]int32, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := parseDecimal(a)
		if err != nil {
			fmt.Fprintln(sh.out, err)
			return
		}
		argv = append(argv, v)
	}

	// The program's scanner keeps seeking back into this file for the whole
	// of its run to resolve backward branches, so the handle outlives this
	// call; it is only reclaimed when the process exits.
	f, err := os.Open(file)
	if err != nil {
		fmt.Fprintf(sh.out, "couldn't open %s: %v\n", file, err)
		return
	}

	prog := sh.admission.Spawn(file, f, argv)
	fmt.Fprintf(sh.out, "program %d started\n", prog.ID)
}

func (sh *Shell) cmdKill(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: kill <id>")
		return
	}
	id, err := parseDecimal(args[0])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	if !sh.admission.Kill(id) {
		fmt.Fprintf(sh.out, "no such program: %d\n", id)
	}
}

func (sh *Shell) cmdList(args []string) {
	for i, st := range sh.admission.List() {
		if st.FocusedID == 0 {
			fmt.Fprintf(sh.out, "worker %d: idle, %d program(s)\n", i, st.Count)
		} else {
			fmt.Fprintf(sh.out, "worker %d: program %d, %d program(s)\n", i, st.FocusedID, st.Count)
		}
	}
	if len(args) > 0 && args[0] == "-v" {
		sh.admission.DumpAll(sh.out)
	}
}

var helpTable = []struct{ usage, doc string }{
	{"run(r) <file> [int ...]", "load and attach a program; each int is decimal, at most 8 digits"},
	{"kill(k) <id>", "mark the given program for termination"},
	{"list(l) [-v]", "report each worker's focused program id and program count; -v dumps full state"},
	{"help(h)", "print this help"},
	{"exit | quit | q", "clean shutdown"},
}

func (sh *Shell) cmdHelp() {
	for _, h := range helpTable {
		fmt.Fprintf(sh.out, "  %-28s %s\n", h.usage, h.doc)
	}
}

// parseDecimal parses a shell-supplied integer argument, rejecting anything
// over maxIntDigits digits, per spec.md section 6.
func parseDecimal(s string) (int32, error) {
	digits := strings.TrimPrefix(s, "-")
	if digits == "" || len(digits) > maxIntDigits {
		return 0, fmt.Errorf("%q: integer arguments must be 1 to %d digits", s, maxIntDigits)
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q: not a valid integer", s)
	}
	return int32(v), nil
}
