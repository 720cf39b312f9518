package exec

import "github.com/kilnforge/wasmcore/wasm"

// ValueType mirrors wasm.ValType for the subset the interpreter cares
// about: the four numeric kinds plus the two reference kinds.
type ValueType = wasm.ValType

// FunctionType is a function signature: parameter and result value types.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

// TypesMatch reports whether two signatures are sequence-equal on both
// parameters and results, the check CALL_INDIRECT uses against the actual
// callee's type.
func (t FunctionType) TypesMatch(other FunctionType) bool {
	if len(t.Params) != len(other.Params) || len(t.Results) != len(other.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// HostFunc is the contract for an imported host function: it receives the
// instance it was invoked against and the popped argument values, and
// returns result values in source order (or a trap/runtime error).
type HostFunc func(instance InstanceView, args []Value) ([]Value, error)

// Memory is the linear-memory surface the interpreter drives. Addressing
// is always 32-bit; the core rejects non-zero memory indices (no
// multi-memory).
type Memory interface {
	ReadByte(addr uint32) (byte, bool)
	WriteByte(addr uint32, v byte) bool
	Read(addr uint32, size uint32) ([]byte, bool)
	Write(addr uint32, data []byte) bool
	Fill(addr, size uint32, value byte) bool
	Copy(dst, src, size uint32) bool
	InitPassiveSegment(segID int, dst, srcOff, size uint32) bool
	DropSegment(segID int)
	Grow(deltaPages int32) int32
	PageCount() uint32
}

// Table is the resizable reference-slot surface CALL_INDIRECT and the
// table.* opcodes drive.
type Table interface {
	Size() uint32
	Ref(i uint32) (Value, bool)
	SetRef(i uint32, v Value) bool
	Grow(delta uint32, fill Value) int32
	Fill(i, n uint32, v Value) bool
}

// Element is one element-segment variant: a list of function indices, a
// list of constant-expression-derived refs, or (declarative single-value)
// a single ref.
type Element interface {
	Size() uint32
	Ref(i uint32) (Value, bool)
	Dropped() bool
}

// InstanceView is everything the interpreter borrows from its host: type
// and function lookup, imports, and the instance's memory/table/global/
// element state. The interpreter never owns any of this and never parses
// module bytes; a vm.ModuleInstance is the concrete implementation.
type InstanceView interface {
	FunctionType(funcID uint32) uint32
	Type(typeID uint32) FunctionType
	FunctionBody(funcID uint32) []Instruction
	FunctionLocalTypes(funcID uint32) []wasm.ValType
	IsImportedFunc(funcID uint32) bool
	HostFunc(funcID uint32) (HostFunc, bool)
	FunctionCount() uint32

	Table(i uint32) Table
	Memory() Memory
	ReadGlobal(i uint32) Value
	WriteGlobal(i uint32, v Value) bool

	Element(i uint32) Element
	ElementCount() uint32
	DropElement(i uint32)
}
