package vm

import "github.com/kilnforge/wasmcore/exec"

// Table is a resizable reference slot, either funcref or externref
// depending on the declared table type. It implements exec.Table.
type Table struct {
	refs []exec.Value
	max  uint32 // 0 means no declared maximum
}

// NewTable allocates a table with minSize entries, each filled with a null
// reference of the table's element kind.
func NewTable(minSize, maxSize uint32, null exec.Value) *Table {
	refs := make([]exec.Value, minSize)
	for i := range refs {
		refs[i] = null
	}
	return &Table{refs: refs, max: maxSize}
}

func (t *Table) Size() uint32 { return uint32(len(t.refs)) }

func (t *Table) Ref(i uint32) (exec.Value, bool) {
	if i >= uint32(len(t.refs)) {
		return exec.Value{}, false
	}
	return t.refs[i], true
}

func (t *Table) SetRef(i uint32, v exec.Value) bool {
	if i >= uint32(len(t.refs)) {
		return false
	}
	t.refs[i] = v
	return true
}

func (t *Table) Grow(delta uint32, fill exec.Value) int32 {
	prev := uint32(len(t.refs))
	next := prev + delta
	if next < prev || (t.max != 0 && next > t.max) {
		return -1
	}
	grown := make([]exec.Value, delta)
	for i := range grown {
		grown[i] = fill
	}
	t.refs = append(t.refs, grown...)
	return int32(prev)
}

func (t *Table) Fill(i, n uint32, v exec.Value) bool {
	end := uint64(i) + uint64(n)
	if end > uint64(len(t.refs)) {
		return false
	}
	for j := i; j < uint32(end); j++ {
		t.refs[j] = v
	}
	return true
}
