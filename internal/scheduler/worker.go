// Package scheduler implements the round-robin preemptive scheduler of
// spec.md section 4.7/4.8: one Worker per OS thread, each owning a circular
// list of Programs, and an Admission layer that places new Programs onto
// the least-loaded Worker and tears the whole scheduler down on Shutdown.
package scheduler

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/gikoskos/simbly/internal/interp"
	"github.com/gikoskos/simbly/internal/rtlog"
)

// maxTimeSlice bounds the pseudo-random time budget a worker grants a
// program on each visit, per spec.md section 4.7.
const maxTimeSlice = 10 * time.Millisecond

// node is one link in a Worker's circular doubly-linked program list.
type node struct {
	prog       *interp.Program
	next, prev *node
}

// Worker owns a circular program list and a single goroutine standing in
// for spec.md's "single OS thread". cur tracks the node currently in focus
// so Snapshot can report it without perturbing the run loop.
type Worker struct {
	id    int
	log   *rtlog.Logger
	print *interp.PrintSink

	mu       sync.Mutex
	notEmpty *sync.Cond
	head     *node
	cur      *node
	count    int
	running  bool

	rnd *rand.Rand
}

func newWorker(id int, log *rtlog.Logger, print *interp.PrintSink) *Worker {
	w := &Worker{
		id:      id,
		log:     log.With("worker", id),
		print:   print,
		running: true,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
	}
	w.notEmpty = sync.NewCond(&w.mu)
	return w
}

// Snapshot reports the id of the program currently in focus (0 if idle) and
// the worker's program count, for the shell's list command.
func (w *Worker) Snapshot() (focusedID int32, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur != nil {
		focusedID = w.cur.prog.ID
	}
	return focusedID, w.count
}

// Dump writes every currently-attached program's state to out, for the
// shell's verbose list and cmd/simbly's -dump-on-exit.
func (w *Worker) Dump(out io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.head == nil {
		return
	}
	n := w.head
	for {
		n.prog.Dump(out)
		n = n.next
		if n == w.head {
			return
		}
	}
}

// append adds prog to the tail of the circular list and wakes the worker if
// it was waiting on an empty list.
func (w *Worker) append(prog *interp.Program) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := &node{prog: prog}
	if w.head == nil {
		n.next, n.prev = n, n
		w.head = n
	} else {
		last := w.head.prev
		last.next, n.prev = n, last
		n.next, w.head.prev = w.head, n
	}
	w.count++
	w.notEmpty.Broadcast()
}

// stop tells the worker's Run loop to return once it next checks running,
// per spec.md section 4.8's Shutdown.
func (w *Worker) stop() {
	w.mu.Lock()
	w.running = false
	w.notEmpty.Broadcast()
	w.mu.Unlock()
}

// kill marks the program with id FINISHED and error-flagged if this worker
// owns it, force-waking it first if it is BLOCKED, per spec.md section 4.8.
func (w *Worker) kill(id int32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.head == nil {
		return false
	}
	n := w.head
	for {
		if n.prog.ID == id {
			if n.prog.State == interp.Blocked && n.prog.BlockedOn != nil {
				n.prog.BlockedOn.ForceWake(n.prog.BlockedIdx)
			}
			n.prog.Kill()
			return true
		}
		n = n.next
		if n == w.head {
			return false
		}
	}
}

// unlinkLocked removes n from the circular list; w.mu must be held.
func (w *Worker) unlinkLocked(n *node) {
	if n.next == n {
		w.head = nil
	} else {
		n.prev.next = n.next
		n.next.prev = n.prev
		if w.head == n {
			w.head = n.next
		}
	}
	n.next, n.prev = nil, nil
	w.count--
}

// Run is the worker's main loop, per spec.md section 4.7. It returns once
// stop has been called, after the visit in progress (if any) completes;
// programs still attached stay on the list. Callers run it in its own
// goroutine.
func (w *Worker) Run() {
	for {
		w.mu.Lock()
		for w.running && w.head == nil {
			w.notEmpty.Wait()
		}
		if !w.running {
			w.mu.Unlock()
			return
		}
		w.cur = w.head
		w.mu.Unlock()

		for {
			w.mu.Lock()
			if !w.running {
				w.mu.Unlock()
				break
			}
			cur := w.cur
			w.mu.Unlock()
			if cur == nil {
				break
			}

			prog := cur.prog
			budget := time.Duration(w.rnd.Int63n(int64(maxTimeSlice)))
			w.runSlice(prog, budget)

			w.mu.Lock()
			if prog.State == interp.Finished || prog.ErrorFlag {
				w.reportExitLocked(prog)
				next := cur.next
				w.unlinkLocked(cur)
				if w.head == nil {
					w.cur = nil
				} else {
					w.cur = next
				}
			} else {
				w.cur = cur.next
			}
			w.mu.Unlock()
		}
	}
}

// runSlice dispatches on prog.State for a single visit, per spec.md section
// 4.7's step (d).
func (w *Worker) runSlice(prog *interp.Program, budget time.Duration) {
	w.log.Printf("TRACE", "program %d visit: state=%s budget=%s", prog.ID, prog.State, budget)
	switch prog.State {
	case interp.MagicLine, interp.InstructionLine:
		w.runInstructions(prog, budget)
	case interp.Sleeping:
		w.tickSleep(prog, budget)
	case interp.Blocked:
		w.blockedTick(prog, budget)
	}
}

// runInstructions guarantees at least one instruction executes, then keeps
// going until the budget is exhausted or the program leaves INSTRUCTION_LINE.
func (w *Worker) runInstructions(prog *interp.Program, budget time.Duration) {
	for {
		start := time.Now()
		if err := prog.InterpretNextLine(); err != nil {
			w.log.Printf("ERROR", "program %d: %v", prog.ID, err)
		}
		budget -= time.Since(start)
		if budget <= 0 || prog.State != interp.InstructionLine {
			return
		}
	}
}

// tickSleep advances a SLEEPING program's countdown by budget, sleeping the
// worker thread itself for the portion actually consumed, per spec.md
// section 4.7's SLEEPING branch.
func (w *Worker) tickSleep(prog *interp.Program, budget time.Duration) {
	t := budget.Nanoseconds()
	d := prog.SleepLeft.Nsec - t
	switch {
	case d < 0 && prog.SleepLeft.Sec == 0:
		time.Sleep(time.Duration(prog.SleepLeft.Nsec) * time.Nanosecond)
		prog.State = interp.InstructionLine
		prog.SleepLeft = interp.SleepRemainder{}
	case d < 0:
		prog.SleepLeft.Sec--
		prog.SleepLeft.Nsec = d + 1_000_000_000
		time.Sleep(budget)
	default:
		prog.SleepLeft.Nsec = d
		time.Sleep(budget)
	}
}

// blockedTick implements spec.md section 4.7's BlockedTick: try the
// non-blocking decrement first, and only wait on the GlobalVar's condvar,
// bounded by budget, if that fails. Per spec.md section 4.7 and
// original_source/src/global.c's program_state_blocked, the wait is
// followed immediately by a re-check/decrement whether it woke on a
// Broadcast or timed out -- deferring that retry to the worker's next
// visit would cost a full extra round-robin cycle of latency every time an
// Up() actually wakes this program.
func (w *Worker) blockedTick(prog *interp.Program, budget time.Duration) {
	v := prog.BlockedOn
	if v == nil {
		return
	}
	if v.TryDown(prog.BlockedIdx) {
		if prog.State == interp.Blocked {
			prog.State = interp.InstructionLine
		}
		return
	}
	v.Wait(budget)
	if v.TryDown(prog.BlockedIdx) {
		if prog.State == interp.Blocked {
			prog.State = interp.InstructionLine
		}
	}
}

// reportExitLocked prints the program's completion status through the
// shared print sink, per spec.md section 6; w.mu is held by the caller but
// the sink has its own independent lock.
func (w *Worker) reportExitLocked(prog *interp.Program) {
	msg := fmt.Sprintf("Program %d finished\n", prog.ID)
	if prog.ErrorFlag {
		msg = fmt.Sprintf("Program %d was killed unexpectedly\n", prog.ID)
	}
	w.print.Write([]byte(msg))
}
