package exec

import (
	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/wasm"
)

func trapOOBMemory(detail string) error {
	return errors.Trap(errors.KindTrapOOBMemory, detail)
}

func trapOOBTable(detail string) error {
	return errors.Trap(errors.KindTrapOOBTable, detail)
}

// memLoad reads size little-endian bytes starting at addr and assembles
// them into a uint64, bounds-checked against the memory's current size.
func memLoad(mem Memory, addr uint32, size uint32) (uint64, error) {
	data, ok := mem.Read(addr, size)
	if !ok {
		return 0, trapOOBMemory("load out of bounds")
	}
	var v uint64
	for i := uint32(0); i < size; i++ {
		v |= uint64(data[i]) << (8 * i)
	}
	return v, nil
}

func memStore(mem Memory, addr uint32, size uint32, v uint64) error {
	data := make([]byte, size)
	for i := uint32(0); i < size; i++ {
		data[i] = byte(v >> (8 * i))
	}
	if !mem.Write(addr, data) {
		return trapOOBMemory("store out of bounds")
	}
	return nil
}

// signExtend sign-extends the low `bits` bits of raw directly to a full
// 64-bit value. Width-correct by construction: no intermediate narrower
// boxing, unlike the byte-then-rebox pattern spec.md §9 calls out as
// hacky in the source this core replaces.
func signExtend(raw uint64, bits int) int64 {
	shift := 64 - bits
	return int64(raw<<shift) >> shift
}

func effectiveAddr(dyn uint32, offset uint64) uint32 {
	return dyn + uint32(offset)
}

func makeLoadHandler(size uint32, is64, signed bool) opHandler {
	return func(vm *Interpreter, f *StackFrame) error {
		imm := f.Current().Imm.(wasm.MemoryImm)
		dyn := vm.Stack.Pop().U32()
		raw, err := memLoad(f.Instance.Memory(), effectiveAddr(dyn, imm.Offset), size)
		if err != nil {
			return err
		}
		if signed {
			ext := signExtend(raw, int(size)*8)
			if is64 {
				vm.Stack.Push(I64(ext))
			} else {
				vm.Stack.Push(I32(int32(ext)))
			}
			f.Advance()
			return nil
		}
		if is64 {
			vm.Stack.Push(I64(int64(raw)))
		} else {
			vm.Stack.Push(I32(int32(uint32(raw))))
		}
		f.Advance()
		return nil
	}
}

func makeStoreHandler(size uint32, is64 bool) opHandler {
	return func(vm *Interpreter, f *StackFrame) error {
		imm := f.Current().Imm.(wasm.MemoryImm)
		val := vm.Stack.Pop()
		dyn := vm.Stack.Pop().U32()
		var raw uint64
		if is64 {
			raw = val.U64()
		} else {
			raw = uint64(val.U32())
		}
		if err := memStore(f.Instance.Memory(), effectiveAddr(dyn, imm.Offset), size, raw); err != nil {
			return err
		}
		f.Advance()
		return nil
	}
}

func execF32Load(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MemoryImm)
	dyn := vm.Stack.Pop().U32()
	raw, err := memLoad(f.Instance.Memory(), effectiveAddr(dyn, imm.Offset), 4)
	if err != nil {
		return err
	}
	vm.Stack.Push(F32Bits(uint32(raw)))
	f.Advance()
	return nil
}

func execF64Load(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MemoryImm)
	dyn := vm.Stack.Pop().U32()
	raw, err := memLoad(f.Instance.Memory(), effectiveAddr(dyn, imm.Offset), 8)
	if err != nil {
		return err
	}
	vm.Stack.Push(F64Bits(raw))
	f.Advance()
	return nil
}

func execF32Store(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MemoryImm)
	val := vm.Stack.Pop()
	dyn := vm.Stack.Pop().U32()
	if err := memStore(f.Instance.Memory(), effectiveAddr(dyn, imm.Offset), 4, uint64(val.U32())); err != nil {
		return err
	}
	f.Advance()
	return nil
}

func execF64Store(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MemoryImm)
	val := vm.Stack.Pop()
	dyn := vm.Stack.Pop().U32()
	if err := memStore(f.Instance.Memory(), effectiveAddr(dyn, imm.Offset), 8, val.U64()); err != nil {
		return err
	}
	f.Advance()
	return nil
}

func execMemorySize(vm *Interpreter, f *StackFrame) error {
	vm.Stack.Push(I32(int32(f.Instance.Memory().PageCount())))
	f.Advance()
	return nil
}

func execMemoryGrow(vm *Interpreter, f *StackFrame) error {
	delta := vm.Stack.Pop().I32()
	prev := f.Instance.Memory().Grow(delta)
	vm.Stack.Push(I32(prev))
	f.Advance()
	return nil
}

// --- bulk memory (0xFC prefix) ---

func execMemoryInit(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MiscImm)
	segID := int(imm.Operands[0])
	memIdx := imm.Operands[1]
	size := vm.Stack.Pop().U32()
	srcOff := vm.Stack.Pop().U32()
	dst := vm.Stack.Pop().U32()
	if memIdx != 0 {
		return trapOOBMemory("memory.init: multi-memory not supported")
	}
	if !f.Instance.Memory().InitPassiveSegment(segID, dst, srcOff, size) {
		return trapOOBMemory("memory.init out of bounds")
	}
	f.Advance()
	return nil
}

func execDataDrop(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MiscImm)
	f.Instance.Memory().DropSegment(int(imm.Operands[0]))
	f.Advance()
	return nil
}

func execMemoryCopy(vm *Interpreter, f *StackFrame) error {
	size := vm.Stack.Pop().U32()
	src := vm.Stack.Pop().U32()
	dst := vm.Stack.Pop().U32()
	if !f.Instance.Memory().Copy(dst, src, size) {
		return trapOOBMemory("memory.copy out of bounds")
	}
	f.Advance()
	return nil
}

func execMemoryFill(vm *Interpreter, f *StackFrame) error {
	size := vm.Stack.Pop().U32()
	val := vm.Stack.Pop().U32()
	dst := vm.Stack.Pop().U32()
	if !f.Instance.Memory().Fill(dst, size, byte(val)) {
		return trapOOBMemory("memory.fill out of bounds")
	}
	f.Advance()
	return nil
}

// --- table ops ---

func execTableGet(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.TableImm)
	i := vm.Stack.Pop().U32()
	v, ok := f.Instance.Table(imm.TableIdx).Ref(i)
	if !ok {
		return trapOOBTable("table.get out of bounds")
	}
	vm.Stack.Push(v)
	f.Advance()
	return nil
}

func execTableSet(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.TableImm)
	v := vm.Stack.Pop()
	i := vm.Stack.Pop().U32()
	if !f.Instance.Table(imm.TableIdx).SetRef(i, v) {
		return trapOOBTable("table.set out of bounds")
	}
	f.Advance()
	return nil
}

func execTableInit(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MiscImm)
	elemIdx := imm.Operands[0]
	tableIdx := imm.Operands[1]
	size := vm.Stack.Pop().U32()
	srcOff := vm.Stack.Pop().U32()
	dstOff := vm.Stack.Pop().U32()

	elem := f.Instance.Element(elemIdx)
	if elem == nil || elem.Dropped() {
		return trapOOBTable("table.init: dropped or missing element segment")
	}
	if uint64(srcOff)+uint64(size) > uint64(elem.Size()) {
		return trapOOBTable("table.init: source range exceeds element segment")
	}
	table := f.Instance.Table(tableIdx)
	if uint64(dstOff)+uint64(size) > uint64(table.Size()) {
		return trapOOBTable("table.init: destination range exceeds table")
	}
	funcCount := f.Instance.FunctionCount()
	for i := uint32(0); i < size; i++ {
		v, _ := elem.Ref(srcOff + i)
		if v.Kind == KindFuncRef && !v.IsNullRef() && v.U32() >= funcCount {
			return trapOOBTable("table.init: funcref index out of range")
		}
		if !table.SetRef(dstOff+i, v) {
			return trapOOBTable("table.init: write out of bounds")
		}
	}
	f.Advance()
	return nil
}

func execElemDrop(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MiscImm)
	f.Instance.DropElement(imm.Operands[0])
	f.Advance()
	return nil
}

func execTableCopy(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MiscImm)
	dstTable := f.Instance.Table(imm.Operands[0])
	srcTable := f.Instance.Table(imm.Operands[1])
	size := vm.Stack.Pop().U32()
	srcOff := vm.Stack.Pop().U32()
	dstOff := vm.Stack.Pop().U32()

	if uint64(srcOff)+uint64(size) > uint64(srcTable.Size()) || uint64(dstOff)+uint64(size) > uint64(dstTable.Size()) {
		return trapOOBTable("table.copy out of bounds")
	}
	if dstOff <= srcOff {
		for i := uint32(0); i < size; i++ {
			v, _ := srcTable.Ref(srcOff + i)
			dstTable.SetRef(dstOff+i, v)
		}
	} else {
		for i := size; i > 0; i-- {
			v, _ := srcTable.Ref(srcOff + i - 1)
			dstTable.SetRef(dstOff+i-1, v)
		}
	}
	f.Advance()
	return nil
}

func execTableGrow(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MiscImm)
	n := vm.Stack.Pop().U32()
	fillVal := vm.Stack.Pop()
	vm.Stack.Push(I32(f.Instance.Table(imm.Operands[0]).Grow(n, fillVal)))
	f.Advance()
	return nil
}

func execTableSize(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MiscImm)
	vm.Stack.Push(I32(int32(f.Instance.Table(imm.Operands[0]).Size())))
	f.Advance()
	return nil
}

func execTableFill(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.MiscImm)
	size := vm.Stack.Pop().U32()
	val := vm.Stack.Pop()
	off := vm.Stack.Pop().U32()
	if !f.Instance.Table(imm.Operands[0]).Fill(off, size, val) {
		return trapOOBTable("table.fill out of bounds")
	}
	f.Advance()
	return nil
}
