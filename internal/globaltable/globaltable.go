// Package globaltable implements the process-wide table of named
// GlobalVars used as counting semaphores, per spec.md section 4.6. Lock
// ordering is always table-then-entry (spec.md section 3's invariant):
// GlobalTable.mu is held only long enough to find-or-create the entry, then
// released before the entry's own mutex is taken.
package globaltable

import (
	"sync"
	"time"
)

// InitMode picks the default value newly-grown counter slots start at.
// spec.md section 9 calls this out as a build-time choice with materially
// different semantics; this runtime makes it a runtime Table option instead
// of a compile-time switch, defaulting to InitZero per spec.md's default.
type InitMode int

const (
	// InitZero starts fresh counters at 0: a DOWN on a brand new global
	// blocks until some UP arrives. This is spec.md's documented default.
	InitZero InitMode = iota
	// InitOne starts fresh counters at 1: a DOWN on a brand new global
	// succeeds immediately, as if it had already been UP'd once.
	InitOne
)

func (m InitMode) defaultValue() int32 {
	if m == InitOne {
		return 1
	}
	return 0
}

// Var is a dynamically-sized vector of 32-bit counters guarded by its own
// mutex and condition variable. UP broadcasts on Cond so that every program
// blocked on any index of this Var re-checks, since more than one program
// may be waiting on the same (var, index) pair.
type Var struct {
	mu     sync.Mutex
	Cond   *sync.Cond
	counts []int32
	init   InitMode
}

func newVar(init InitMode, size int) *Var {
	v := &Var{init: init, counts: make([]int32, size)}
	for i := range v.counts {
		v.counts[i] = init.defaultValue()
	}
	v.Cond = sync.NewCond(&v.mu)
	return v
}

// growLocked extends counts to length n, filling new slots with the
// default, and MUST be called with v.mu held. This is the single growth
// path every operation below routes through: spec.md section 9's "possible
// defect" note calls out an original implementation that reallocated the
// wrong pointer on growth, so this one only ever touches v.counts.
func (v *Var) growLocked(n int) {
	if n <= len(v.counts) {
		return
	}
	grown := make([]int32, n)
	copy(grown, v.counts)
	for i := len(v.counts); i < n; i++ {
		grown[i] = v.init.defaultValue()
	}
	v.counts = grown
}

// Len reports the current length of the counter vector.
func (v *Var) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.counts)
}

// Table is the process-wide name -> *Var map.
type Table struct {
	mu   sync.Mutex
	vars map[string]*Var
	init InitMode
}

// New constructs an empty Table using the given default initializer mode.
func New(init InitMode) *Table {
	return &Table{vars: make(map[string]*Var), init: init}
}

// lookupOrCreate finds name's Var, creating one sized at least minSize
// (zero-valued per init mode) if it doesn't exist yet. The table lock is
// held only for this lookup/insert, never across the subsequent per-entry
// lock acquisition performed by callers.
func (t *Table) lookupOrCreate(name string, minSize int) *Var {
	t.mu.Lock()
	v, ok := t.vars[name]
	if !ok {
		v = newVar(t.init, minSize)
		t.vars[name] = v
	}
	t.mu.Unlock()
	return v
}

// Load returns the value at (name, idx), auto-creating/growing the global
// as needed, per spec.md section 4.5's LOAD semantics.
func (t *Table) Load(name string, idx int) int32 {
	v := t.lookupOrCreate(name, idx+1)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.growLocked(idx + 1)
	return v.counts[idx]
}

// Store sets the value at (name, idx), auto-creating/growing as needed.
func (t *Table) Store(name string, idx int, val int32) {
	v := t.lookupOrCreate(name, idx+1)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.growLocked(idx + 1)
	v.counts[idx] = val
}

// Up increments (name, idx) and broadcasts waiters, growing the vector if
// idx lies beyond its current length. Per spec.md section 4.6/9, growing to
// satisfy an UP seeds the grown target slot one above the build's default
// (as if a 0-initialized slot had already received this UP), while any
// other newly-grown slots get the plain default.
func (t *Table) Up(name string, idx int) {
	v := t.lookupOrCreate(name, idx+1)
	v.mu.Lock()
	if idx < len(v.counts) {
		v.counts[idx]++
	} else {
		v.growLocked(idx + 1)
		v.counts[idx] = v.init.defaultValue() + 1
	}
	v.Cond.Broadcast()
	v.mu.Unlock()
}

// PrepareDown grows (name, idx) as needed and returns the Var a caller
// should then block on, per spec.md section 4.6: the actual decrement and
// wait are left to the scheduler's BlockedTick, not performed here.
func (t *Table) PrepareDown(name string, idx int) *Var {
	v := t.lookupOrCreate(name, idx+1)
	v.mu.Lock()
	v.growLocked(idx + 1)
	v.mu.Unlock()
	return v
}

// TryDown attempts the non-blocking half of a DOWN: if counts[idx] > 0 it
// decrements and returns true; otherwise it returns false without blocking.
// Callers (the scheduler's BlockedTick) must hold no lock when calling this.
func (v *Var) TryDown(idx int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.counts[idx] > 0 {
		v.counts[idx]--
		return true
	}
	return false
}

// At returns counts[idx] without mutating it, for Kill's forced-wakeup path
// and for tests.
func (v *Var) At(idx int) int32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[idx]
}

// Wait blocks on the Var's condition variable for up to timeout, for the
// scheduler's BlockedTick (spec.md section 4.7): a DOWN that found nothing
// to take waits here rather than spinning, and is woken early by any UP's
// Broadcast. sync.Cond has no native deadline, so a timer drives a second
// Broadcast if nothing else does first. v.mu is held before the timer is
// scheduled and the timer's own callback takes v.mu before broadcasting, so
// the broadcast can't fire until Cond.Wait has actually unlocked and
// parked -- otherwise it could run to completion on another goroutine
// before this one ever calls Wait, losing the timeout entirely.
func (v *Var) Wait(timeout time.Duration) {
	v.mu.Lock()
	timer := time.AfterFunc(timeout, func() {
		v.mu.Lock()
		v.Cond.Broadcast()
		v.mu.Unlock()
	})
	v.Cond.Wait()
	v.mu.Unlock()
	timer.Stop()
}

// ForceWake sets counts[idx] to at least 1 and broadcasts, used by Kill to
// release a program blocked on a global that will never otherwise be UP'd.
func (v *Var) ForceWake(idx int) {
	v.mu.Lock()
	if v.counts[idx] < 1 {
		v.counts[idx] = 1
	}
	v.Cond.Broadcast()
	v.mu.Unlock()
}
