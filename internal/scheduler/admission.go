package scheduler

import (
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gikoskos/simbly/internal/globaltable"
	"github.com/gikoskos/simbly/internal/interp"
	"github.com/gikoskos/simbly/internal/panicerr"
	"github.com/gikoskos/simbly/internal/rtlog"
)

// MinWorkers is the floor spec.md section 5 places under the worker count,
// regardless of how few CPUs the host reports.
const MinWorkers = 4

// DefaultWorkerCount returns one worker per available CPU, floored at
// MinWorkers.
func DefaultWorkerCount() int {
	n := runtime.NumCPU()
	if n < MinWorkers {
		n = MinWorkers
	}
	return n
}

// Admission is the placement and lifecycle layer over a fixed pool of
// Workers, per spec.md section 4.8. It also owns the GlobalTable and print
// sink every spawned Program shares, since those are process-wide resources
// rather than anything a single worker or program owns.
type Admission struct {
	workers []*Worker
	globals *globaltable.Table
	print   *interp.PrintSink
	log     *rtlog.Logger
	eg      *errgroup.Group
}

// New starts numWorkers goroutines (floored at MinWorkers) and returns an
// Admission ready to accept programs. out receives PRINT output and
// completion/kill status lines, serialized through one process-wide sink.
func New(numWorkers int, initMode globaltable.InitMode, out io.Writer, log *rtlog.Logger) *Admission {
	if numWorkers < MinWorkers {
		numWorkers = MinWorkers
	}

	a := &Admission{
		globals: globaltable.New(initMode),
		print:   interp.NewPrintSink(out),
		log:     log,
		eg:      new(errgroup.Group),
	}

	a.workers = make([]*Worker, numWorkers)
	for i := range a.workers {
		w := newWorker(i, log, a.print)
		a.workers[i] = w
		a.eg.Go(func() error {
			name := fmt.Sprintf("worker-%d", w.id)
			return panicerr.Recover(name, func() error {
				w.Run()
				return nil
			})
		})
	}
	return a
}

// Spawn constructs a Program reading from r and attaches it via
// AttachProgram, wiring in the shared GlobalTable, print sink, and logger.
func (a *Admission) Spawn(name string, r io.ReadSeeker, args []int32) *interp.Program {
	prog := interp.New(name, r, args, a.globals, a.print)
	prog.SetLogger(a.log)
	a.AttachProgram(prog)
	return prog
}

// AttachProgram places prog on the worker with the smallest count, breaking
// ties by index, per spec.md section 4.8.
func (a *Admission) AttachProgram(prog *interp.Program) {
	best := a.workers[0]
	bestCount := -1
	for _, w := range a.workers {
		w.mu.Lock()
		c := w.count
		w.mu.Unlock()
		if bestCount == -1 || c < bestCount {
			best, bestCount = w, c
		}
	}
	best.append(prog)
}

// Kill marks the program with id for termination, force-waking it first if
// it is BLOCKED. It reports whether any worker owned that id.
func (a *Admission) Kill(id int32) bool {
	for _, w := range a.workers {
		if w.kill(id) {
			return true
		}
	}
	return false
}

// WorkerStatus is one line of the shell's list command output.
type WorkerStatus struct {
	FocusedID int32 // 0 if the worker is currently idle
	Count     int
}

// List reports every worker's current focus and program count, in worker
// order, per spec.md section 6's list(l) command.
func (a *Admission) List() []WorkerStatus {
	out := make([]WorkerStatus, len(a.workers))
	for i, w := range a.workers {
		id, count := w.Snapshot()
		out[i] = WorkerStatus{FocusedID: id, Count: count}
	}
	return out
}

// DumpAll writes every still-attached program's state to out, in worker
// order, for cmd/simbly's -dump-on-exit and the shell's verbose list.
func (a *Admission) DumpAll(out io.Writer) {
	for _, w := range a.workers {
		w.Dump(out)
	}
}

// Shutdown stops every worker and waits for their goroutines to return,
// surfacing any worker panic as a real error instead of silently dropping
// it, per spec.md section 4.8's Shutdown and SPEC_FULL.md's errgroup wiring.
func (a *Admission) Shutdown() error {
	for _, w := range a.workers {
		w.stop()
	}
	return a.eg.Wait()
}
