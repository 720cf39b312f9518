package exec

import "github.com/kilnforge/wasmcore/wasm"

// fakeMemory is a minimal linear memory for exec package tests.
type fakeMemory struct {
	data     []byte
	segments map[int][]byte
	dropped  map[int]bool
}

func newFakeMemory(pages uint32) *fakeMemory {
	return &fakeMemory{
		data:     make([]byte, pages*65536),
		segments: map[int][]byte{},
		dropped:  map[int]bool{},
	}
}

func (m *fakeMemory) ReadByte(addr uint32) (byte, bool) {
	if addr >= uint32(len(m.data)) {
		return 0, false
	}
	return m.data[addr], true
}

func (m *fakeMemory) WriteByte(addr uint32, v byte) bool {
	if addr >= uint32(len(m.data)) {
		return false
	}
	m.data[addr] = v
	return true
}

func (m *fakeMemory) Read(addr, size uint32) ([]byte, bool) {
	if uint64(addr)+uint64(size) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[addr : addr+size], true
}

func (m *fakeMemory) Write(addr uint32, data []byte) bool {
	if uint64(addr)+uint64(len(data)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[addr:], data)
	return true
}

func (m *fakeMemory) Fill(addr, size uint32, value byte) bool {
	if uint64(addr)+uint64(size) > uint64(len(m.data)) {
		return false
	}
	for i := uint32(0); i < size; i++ {
		m.data[addr+i] = value
	}
	return true
}

func (m *fakeMemory) Copy(dst, src, size uint32) bool {
	if uint64(dst)+uint64(size) > uint64(len(m.data)) || uint64(src)+uint64(size) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[dst:dst+size], m.data[src:src+size])
	return true
}

func (m *fakeMemory) InitPassiveSegment(segID int, dst, srcOff, size uint32) bool {
	if m.dropped[segID] {
		return false
	}
	seg := m.segments[segID]
	if uint64(srcOff)+uint64(size) > uint64(len(seg)) {
		return false
	}
	return m.Write(dst, seg[srcOff:srcOff+size])
}

func (m *fakeMemory) DropSegment(segID int) { m.dropped[segID] = true }

func (m *fakeMemory) Grow(deltaPages int32) int32 {
	prev := int32(len(m.data) / 65536)
	m.data = append(m.data, make([]byte, int(deltaPages)*65536)...)
	return prev
}

func (m *fakeMemory) PageCount() uint32 { return uint32(len(m.data) / 65536) }

// fakeTable is a minimal reference table for exec package tests.
type fakeTable struct {
	refs []Value
}

func newFakeTable(size uint32) *fakeTable {
	refs := make([]Value, size)
	for i := range refs {
		refs[i] = NullFuncRef()
	}
	return &fakeTable{refs: refs}
}

func (t *fakeTable) Size() uint32 { return uint32(len(t.refs)) }

func (t *fakeTable) Ref(i uint32) (Value, bool) {
	if i >= uint32(len(t.refs)) {
		return Value{}, false
	}
	return t.refs[i], true
}

func (t *fakeTable) SetRef(i uint32, v Value) bool {
	if i >= uint32(len(t.refs)) {
		return false
	}
	t.refs[i] = v
	return true
}

func (t *fakeTable) Grow(delta uint32, fill Value) int32 {
	prev := int32(len(t.refs))
	for i := uint32(0); i < delta; i++ {
		t.refs = append(t.refs, fill)
	}
	return prev
}

func (t *fakeTable) Fill(i, n uint32, v Value) bool {
	if uint64(i)+uint64(n) > uint64(len(t.refs)) {
		return false
	}
	for j := uint32(0); j < n; j++ {
		t.refs[i+j] = v
	}
	return true
}

// fakeElement is a minimal element segment for exec package tests.
type fakeElement struct {
	refs    []Value
	dropped bool
}

func (e *fakeElement) Size() uint32 { return uint32(len(e.refs)) }
func (e *fakeElement) Ref(i uint32) (Value, bool) {
	if i >= uint32(len(e.refs)) {
		return Value{}, false
	}
	return e.refs[i], true
}
func (e *fakeElement) Dropped() bool { return e.dropped }

// fakeInstance is a minimal InstanceView for exec package tests: one
// memory, a fixed set of tables/elements, and an in-memory function table
// keyed by index (either a decoded body or a host callback).
type fakeInstance struct {
	types      []FunctionType
	funcTypes  []uint32 // funcID -> typeID
	bodies     map[uint32][]Instruction
	localTypes map[uint32][]wasm.ValType
	hostFuncs  map[uint32]HostFunc
	mem        *fakeMemory
	tables     map[uint32]*fakeTable
	globals    map[uint32]Value
	mutable    map[uint32]bool
	elements   map[uint32]*fakeElement
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{
		bodies:     map[uint32][]Instruction{},
		localTypes: map[uint32][]wasm.ValType{},
		hostFuncs:  map[uint32]HostFunc{},
		mem:        newFakeMemory(1),
		tables:     map[uint32]*fakeTable{},
		globals:    map[uint32]Value{},
		mutable:    map[uint32]bool{},
		elements:   map[uint32]*fakeElement{},
	}
}

func (f *fakeInstance) FunctionType(funcID uint32) uint32 { return f.funcTypes[funcID] }
func (f *fakeInstance) Type(typeID uint32) FunctionType   { return f.types[typeID] }
func (f *fakeInstance) FunctionBody(funcID uint32) []Instruction { return f.bodies[funcID] }
func (f *fakeInstance) FunctionLocalTypes(funcID uint32) []wasm.ValType { return f.localTypes[funcID] }
func (f *fakeInstance) IsImportedFunc(funcID uint32) bool {
	_, ok := f.hostFuncs[funcID]
	return ok
}
func (f *fakeInstance) HostFunc(funcID uint32) (HostFunc, bool) {
	h, ok := f.hostFuncs[funcID]
	return h, ok
}
func (f *fakeInstance) FunctionCount() uint32 { return uint32(len(f.funcTypes)) }

func (f *fakeInstance) Table(i uint32) Table { return f.tables[i] }
func (f *fakeInstance) Memory() Memory       { return f.mem }
func (f *fakeInstance) ReadGlobal(i uint32) Value { return f.globals[i] }
func (f *fakeInstance) WriteGlobal(i uint32, v Value) bool {
	if !f.mutable[i] {
		return false
	}
	f.globals[i] = v
	return true
}

func (f *fakeInstance) Element(i uint32) Element {
	e, ok := f.elements[i]
	if !ok {
		return nil
	}
	return e
}
func (f *fakeInstance) ElementCount() uint32 { return uint32(len(f.elements)) }
func (f *fakeInstance) DropElement(i uint32) {
	if e, ok := f.elements[i]; ok {
		e.dropped = true
	}
}
