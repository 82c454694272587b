// Package localtable implements a program's local name table: a map from
// identifier to either a growable integer Array (a scalar is an Array of
// length 1) or a Label, per spec.md section 4.4. Labels and variables share
// one namespace; colliding the two kinds under the same name is an error.
package localtable

import "fmt"

// Label records where a label definition lives in its source file, so a
// branch can seek straight back to it.
type Label struct {
	Offset  int64
	Line    int
	Column  int
	PrevCol int
}

// entry holds what's stored for a name, with isLabel discriminating the two
// kinds; spec.md section 9 notes a cleaner design uses an explicit
// Array|Label sum type, which is exactly what entry is.
type entry struct {
	isLabel bool
	array   []int32 // index 0 holds the logical length; len(array) >= logicalLen+1
	label   Label
}

// Table is a program's local name table. The zero value is ready to use.
type Table struct {
	m map[string]*entry
}

// ErrKindCollision is returned when a name already denotes the other kind
// (a label where a variable was expected, or vice versa). DefineLabel also
// returns it when a label is redefined at a different position.
type ErrKindCollision struct {
	Name string
	Want string // "variable" or "label"
}

func (e ErrKindCollision) Error() string {
	return fmt.Sprintf("%q is already defined as something other than a %s", e.Name, e.Want)
}

// ErrArrayAsScalar is returned when a plain $name reference resolves to an
// array of length > 1.
type ErrArrayAsScalar struct{ Name string }

func (e ErrArrayAsScalar) Error() string {
	return fmt.Sprintf("%q is an array, not a scalar", e.Name)
}

// ErrNegativeIndex is returned for a negative array index.
type ErrNegativeIndex struct {
	Name  string
	Index int32
}

func (e ErrNegativeIndex) Error() string {
	return fmt.Sprintf("negative index %d into %q", e.Index, e.Name)
}

func (t *Table) get(name string) (*entry, bool) {
	e, ok := t.m[name]
	return e, ok
}

func (t *Table) ensure(name string) *entry {
	if t.m == nil {
		t.m = make(map[string]*entry)
	}
	e, ok := t.m[name]
	if !ok {
		e = &entry{array: []int32{0}}
		t.m[name] = e
	}
	return e
}

// DefineLabel records a label definition at the given position. Redefining
// the same name at the same offset is a no-op (the scanner may revisit a
// label while resolving a forward branch); redefining it at a different
// offset, or a prior variable use of the name, is an ErrKindCollision.
func (t *Table) DefineLabel(name string, lbl Label) error {
	if t.m == nil {
		t.m = make(map[string]*entry)
	}
	e, ok := t.m[name]
	if !ok {
		t.m[name] = &entry{isLabel: true, label: lbl}
		return nil
	}
	if !e.isLabel {
		return ErrKindCollision{Name: name, Want: "label"}
	}
	if e.label != lbl {
		return ErrKindCollision{Name: name, Want: "label"}
	}
	return nil
}

// Label returns the recorded definition for name, and whether it is a label
// at all (as opposed to a variable, or undefined).
func (t *Table) Label(name string) (Label, bool) {
	e, ok := t.get(name)
	if !ok || !e.isLabel {
		return Label{}, false
	}
	return e.label, true
}

// IsLabel reports whether name is currently bound as a label.
func (t *Table) IsLabel(name string) bool {
	e, ok := t.get(name)
	return ok && e.isLabel
}

// Scalar reads name as a scalar. It is an error if name is a label, or an
// array of length > 1. An undefined name reads as 0 (spec.md's local arrays
// default new slots, and by extension new names, to 0).
func (t *Table) Scalar(name string) (int32, error) {
	e, ok := t.get(name)
	if !ok {
		return 0, nil
	}
	if e.isLabel {
		return 0, ErrKindCollision{Name: name, Want: "variable"}
	}
	if logicalLen(e.array) > 1 {
		return 0, ErrArrayAsScalar{Name: name}
	}
	return elemAt(e.array, 0), nil
}

// SetScalar writes name as a scalar, growing/creating it as an array of
// length 1 if it didn't already exist as a longer array.
func (t *Table) SetScalar(name string, v int32) error {
	e := t.ensure(name)
	if e.isLabel {
		return ErrKindCollision{Name: name, Want: "variable"}
	}
	if logicalLen(e.array) > 1 {
		return ErrArrayAsScalar{Name: name}
	}
	setLogicalLen(&e.array, 1)
	e.array[1] = v
	return nil
}

// Index reads name[idx]. Per spec.md section 4.4, reading past the current
// logical length does not grow the array (only writes grow it); it simply
// reads the default 0.
func (t *Table) Index(name string, idx int32) (int32, error) {
	if idx < 0 {
		return 0, ErrNegativeIndex{Name: name, Index: idx}
	}
	e, ok := t.get(name)
	if !ok {
		return 0, nil
	}
	if e.isLabel {
		return 0, ErrKindCollision{Name: name, Want: "variable"}
	}
	if int(idx) >= logicalLen(e.array) {
		return 0, nil
	}
	return elemAt(e.array, idx), nil
}

// SetIndex writes name[idx] = v, growing the array (zero-filling new slots)
// if idx is beyond the current logical length, per spec.md section 4.4's
// growth policy.
func (t *Table) SetIndex(name string, idx int32, v int32) error {
	if idx < 0 {
		return ErrNegativeIndex{Name: name, Index: idx}
	}
	e := t.ensure(name)
	if e.isLabel {
		return ErrKindCollision{Name: name, Want: "variable"}
	}
	if int(idx) >= logicalLen(e.array) {
		setLogicalLen(&e.array, int(idx)+1)
	}
	e.array[idx+1] = v
	return nil
}

// Exists reports whether name is bound to anything at all, label or
// variable, without caring which.
func (t *Table) Exists(name string) bool {
	_, ok := t.get(name)
	return ok
}

// Len returns the logical length of name's array (1 for a scalar, 0 for an
// undefined name).
func (t *Table) Len(name string) int {
	e, ok := t.get(name)
	if !ok || e.isLabel {
		return 0
	}
	return logicalLen(e.array)
}

// logicalLen and elemAt/setLogicalLen encode spec.md's "first element of the
// storage records the logical length" rule: array[0] is the length, array[1:]
// is the data, so a scalar is exactly a length-1 array with one data slot.
func logicalLen(array []int32) int {
	if len(array) == 0 {
		return 0
	}
	return int(array[0])
}

func elemAt(array []int32, i int32) int32 {
	if int(i)+1 >= len(array) {
		return 0
	}
	return array[i+1]
}

func setLogicalLen(array *[]int32, n int) {
	need := n + 1
	if len(*array) < need {
		grown := make([]int32, need)
		copy(grown, *array)
		*array = grown
	}
	(*array)[0] = int32(n)
}
